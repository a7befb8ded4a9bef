package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/gosuda/turingarena/internal/arena"
	"github.com/gosuda/turingarena/internal/domain"
)

type SessionSummary struct {
	ID         string       `json:"id"`
	Phase      domain.Phase `json:"phase" enum:"pending,initialized,running,finished"`
	SeatsTaken int          `json:"seats_taken"`
	Seats      int          `json:"seats"`
}

type SessionDetail struct {
	SessionSummary
	Players  []domain.Player `json:"players" doc:"Roster in display order, empty until all seats are taken"`
	Messages int             `json:"messages" doc:"Number of messages in the transcript"`

	PendingCycles int  `json:"pending_cycles" doc:"Turn cycles waiting behind the running one"`
	CycleRunning  bool `json:"cycle_running" doc:"Whether a turn cycle is executing"`
}

type ListSessionsOutput struct {
	Body []SessionSummary
}

type GetSessionInput struct {
	ID string `path:"id" doc:"Session ID"`
}

type GetSessionOutput struct {
	Body *SessionDetail
}

func summarize(info arena.Info) SessionSummary {
	return SessionSummary{
		ID:         info.ID,
		Phase:      info.Phase,
		SeatsTaken: info.SeatsTaken,
		Seats:      info.Seats,
	}
}

func RegisterSessionRoutes(api huma.API, sessions SessionDirectory) {
	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List sessions",
		Tags:        []string{"Sessions"},
	}, func(_ context.Context, _ *struct{}) (*ListSessionsOutput, error) {
		list := sessions.List()
		out := make([]SessionSummary, 0, len(list))
		for _, s := range list {
			out = append(out, summarize(s.Info()))
		}
		return &ListSessionsOutput{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{id}",
		Summary:     "Get a session",
		Tags:        []string{"Sessions"},
	}, func(_ context.Context, input *GetSessionInput) (*GetSessionOutput, error) {
		s, err := sessions.Lookup(input.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("session not found")
			}
			return nil, huma.Error500InternalServerError("failed to get session", err)
		}

		info := s.Info()
		return &GetSessionOutput{Body: &SessionDetail{
			SessionSummary: summarize(info),
			Players:        info.Players,
			Messages:       info.Messages,
			PendingCycles:  info.PendingCycles,
			CycleRunning:   info.CycleRunning,
		}}, nil
	})
}
