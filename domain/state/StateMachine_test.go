package state_test

import (
	"sqlreview/domain/state"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("StateMachine", func() {
	var (
		stateMachine *state.StateMachine

		reviewing = state.State{Name: "REVIEWING", Category: state.Pending}
		passed    = state.State{Name: "PASSED", Category: state.InProcess}
		finished  = state.State{Name: "FINISHED", Category: state.Done}
		aborted   = state.State{Name: "ABORTED", Category: state.Done}
	)

	BeforeEach(func() {
		//           REVIEWING   PASSED      FINISHED     ABORTED
		// REVIEWING   -         V (pass)    X            V (cancel)
		// PASSED      X         -           V (execute)  V (cancel)
		// FINISHED    X         X           -            X
		// ABORTED     X         X           X            -
		stateMachine = state.NewStateMachine(
			[]state.State{reviewing, passed, finished, aborted},
			[]state.Transition{
				{Name: "pass", From: reviewing, To: passed},
				{Name: "cancel", From: reviewing, To: aborted},
				{Name: "execute", From: passed, To: finished},
				{Name: "cancel", From: passed, To: aborted},
			})
	})

	Describe("FindTransition", func() {
		It("should find edge by name and source", func() {
			t, found := stateMachine.FindTransition("cancel", "PASSED")
			Ω(found).Should(BeTrue())
			Ω(t.To).Should(Equal(aborted))

			_, found = stateMachine.FindTransition("execute", "REVIEWING")
			Ω(found).Should(BeFalse())
		})
	})

	Describe("Sources", func() {
		It("should list distinct source states of a transition", func() {
			Ω(stateMachine.Sources("cancel")).Should(Equal([]string{"REVIEWING", "PASSED"}))
			Ω(stateMachine.Sources("execute")).Should(Equal([]string{"PASSED"}))
			Ω(stateMachine.Sources("unknown")).Should(BeEmpty())
		})
	})

	Describe("IsTerminal", func() {
		It("should treat done category as terminal", func() {
			Ω(stateMachine.IsTerminal("FINISHED")).Should(BeTrue())
			Ω(stateMachine.IsTerminal("ABORTED")).Should(BeTrue())
			Ω(stateMachine.IsTerminal("PASSED")).Should(BeFalse())
			Ω(stateMachine.IsTerminal("UNKNOWN")).Should(BeFalse())
		})
	})
})
