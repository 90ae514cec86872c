package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// Stash holds messages an actor cannot handle in its current state, keeping the original sender
// so that replies still reach the requester once the messages are replayed.
type Stash struct {
	envelopes []*actor.MessageEnvelope
}

func (s *Stash) Stash(ctx actor.Context, msg any) {
	s.envelopes = append(s.envelopes, &actor.MessageEnvelope{
		Message: msg,
		Sender:  ctx.Sender(),
	})
}

func (s *Stash) Len() int {
	return len(s.envelopes)
}

// UnstashAll replays every stashed message in arrival order.
func (s *Stash) UnstashAll(ctx actor.Context) {
	pending := s.envelopes
	s.envelopes = nil
	for _, env := range pending {
		replay(ctx, env)
	}
}

// UnstashOldest replays only the first stashed message.
func (s *Stash) UnstashOldest(ctx actor.Context) {
	if len(s.envelopes) == 0 {
		return
	}
	env := s.envelopes[0]
	s.envelopes = s.envelopes[1:]
	replay(ctx, env)
}

func replay(ctx actor.Context, env *actor.MessageEnvelope) {
	ctx.RequestWithCustomSender(ctx.Self(), env.Message, env.Sender)
}
