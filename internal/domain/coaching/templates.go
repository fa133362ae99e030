package coaching

import (
	"fmt"

	"github.com/alem-hub/habit-engine/internal/domain/routine"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEMPLATES
// Шаблоны советов для каждой рутины. Motivation содержит ровно один %d -
// длину серии в днях.
// ══════════════════════════════════════════════════════════════════════════════

// templateSet - набор шаблонов одной рутины.
type templateSet struct {
	notification string
	habitTip     string
	motivation   string
	suggestion   string
}

// templatesFor возвращает шаблоны рутины.
// Новая рутина в каталоге без ветки здесь не пройдёт NewAdvisor.
func templatesFor(id routine.ID) (templateSet, bool) {
	switch id {
	case routine.Coffee:
		return templateSet{
			notification: "Perfect coffee moment! Try the 5-minute Spanish vocabulary flash cards while your espresso brews.",
			habitTip:     "Stack learning with the coffee ritual - review yesterday's notes while the machine heats up.",
			motivation:   "🔥 Day %d streak! Your consistency is building neural pathways stronger than caffeine builds energy.",
			suggestion:   "Perfect focus time! Try spaced repetition flashcards while your mind is fresh.",
		}, true
	case routine.Commute:
		return templateSet{
			notification: "Transform this commute into a knowledge journey - listen to a 10-minute economics podcast episode.",
			habitTip:     "Download offline content the night before to eliminate decision fatigue during travel time.",
			motivation:   "⚡ %d days strong! Your commute learning is compounding - you're gaining 50+ hours of knowledge yearly.",
			suggestion:   "Hands-free learning opportunity - switch to audio content or voice recordings.",
		}, true
	case routine.Lunch:
		return templateSet{
			notification: "Fuel your brain with your body - try a quick Python coding challenge while eating that sandwich.",
			habitTip:     "Keep learning bite-sized: pair each meal type with a specific subject to automate your learning stack.",
			motivation:   "🎯 Streak level %d! Your lunchtime learning is like compound interest - small daily gains, massive yearly growth.",
			suggestion:   "Energy boost time! Tackle that challenging coding problem you bookmarked.",
		}, true
	case routine.Evening:
		return templateSet{
			notification: "Wind down with active recall - test yourself on today's chemistry concepts using spaced repetition.",
			habitTip:     "Evening = reflection time. Review what worked today and set tomorrow's micro-learning intention.",
			motivation:   "🌙 %d consecutive days! Your evening ritual is rewiring your brain for long-term retention while you relax.",
			suggestion:   "Reflection mode activated - review today's learnings and plan tomorrow's goals.",
		}, true
	default:
		return templateSet{}, false
	}
}

// render подставляет длину серии в шаблоны.
func (t templateSet) render(days int) Bundle {
	return Bundle{
		Notification: t.notification,
		HabitTip:     t.habitTip,
		Motivation:   fmt.Sprintf(t.motivation, days),
	}
}
