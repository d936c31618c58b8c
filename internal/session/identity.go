package session

import (
	"github.com/google/uuid"

	"github.com/thereayou/sellboard/internal/models"
)

// Identity is either Anonymous or Authenticated(user). The zero value is Anonymous.
type Identity struct {
	user *models.User
}

func Anonymous() Identity {
	return Identity{}
}

func Authenticated(user *models.User) Identity {
	return Identity{user: user}
}

func (i Identity) User() (*models.User, bool) {
	return i.user, i.user != nil
}

func (i Identity) IsAuthenticated() bool {
	return i.user != nil
}

// Is reports whether the identity is the authenticated user with the given id.
func (i Identity) Is(userID uuid.UUID) bool {
	return i.user != nil && i.user.ID == userID
}

// Категории уведомлений
const (
	CategorySuccess = "success"
	CategoryInfo    = "info"
	CategoryDanger  = "danger"
)

type Notice struct {
	Category string
	Message  string
}

// RequestState is the per-request context handed to handlers: the resolved
// identity and the notices produced while handling the request.
type RequestState struct {
	Identity Identity
	outgoing []Notice
}

func NewRequestState(id Identity) *RequestState {
	return &RequestState{Identity: id}
}

func (s *RequestState) Notify(category, message string) {
	s.outgoing = append(s.outgoing, Notice{Category: category, Message: message})
}

func (s *RequestState) Outgoing() []Notice {
	return s.outgoing
}

// TakeOutgoing returns the pending notices and clears the queue.
func (s *RequestState) TakeOutgoing() []Notice {
	out := s.outgoing
	s.outgoing = nil
	return out
}
