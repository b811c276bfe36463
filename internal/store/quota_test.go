package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	. "github.com/onsi/gomega"
)

func TestIncrementBotCounter(t *testing.T) {
	accountID := uuid.New()

	testCases := []struct {
		name        string
		success     bool
		current     int
		max         int
		wantAllowed bool
	}{
		{
			name:        "slot available",
			success:     true,
			current:     1,
			max:         2,
			wantAllowed: true,
		},
		{
			name:    "quota exhausted",
			success: false,
			current: 4,
			max:     4,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGomegaWithT(t)
			s, mock := newMockStore(t)
			mock.ExpectQuery(regexp.QuoteMeta("FROM increment_bot_counter($1)")).
				WithArgs(accountID).
				WillReturnRows(sqlmock.NewRows([]string{"success", "current_count", "max_count"}).
					AddRow(tc.success, tc.current, tc.max))

			decision, err := s.IncrementBotCounter(context.Background(), accountID)
			g.Expect(err).ToNot(HaveOccurred())
			g.Expect(decision.Allowed).To(Equal(tc.wantAllowed))
			g.Expect(decision.CurrentCount).To(Equal(tc.current))
			g.Expect(decision.MaxCount).To(Equal(tc.max))
			g.Expect(mock.ExpectationsWereMet()).To(Succeed())
		})
	}
}

func TestDecrementBotCounter(t *testing.T) {
	g := NewGomegaWithT(t)
	s, mock := newMockStore(t)
	accountID := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("SELECT decrement_bot_counter($1)")).
		WithArgs(accountID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	g.Expect(s.DecrementBotCounter(context.Background(), accountID)).To(Succeed())
	g.Expect(mock.ExpectationsWereMet()).To(Succeed())
}
