package processors

import (
	"context"

	"chat-backend/application/ports"
	"chat-backend/domain/core/entities"

	"golang.org/x/sync/errgroup"
)

// membershipContext is everything a membership fan-out needs besides the
// membership itself. Each lookup keeps its own error so callers can decide
// which failures they tolerate.
type membershipContext struct {
	memberIDs []string
	user      *entities.User
	entity    *entities.Entity

	memberErr error
	userErr   error
	entityErr error
}

// fetchMembershipContext issues the three lookups concurrently and waits for
// all of them. One failing lookup does not cancel the others.
func fetchMembershipContext(ctx context.Context, memberships ports.MembershipRepository, users ports.UserReader, entityReader ports.EntityReader, m *entities.Membership) membershipContext {
	var (
		g   errgroup.Group
		out membershipContext
	)

	g.Go(func() error {
		out.memberIDs, out.memberErr = memberships.ListMemberIDs(ctx, m.EntityID)
		return nil
	})
	g.Go(func() error {
		out.user, out.userErr = users.GetUser(ctx, m.UserID)
		return nil
	})
	g.Go(func() error {
		out.entity, out.entityErr = entityReader.GetEntity(ctx, m.EntityID)
		return nil
	})
	_ = g.Wait()

	return out
}

// messageContext is the enrichment of a message-created record.
type messageContext struct {
	message   *entities.Message
	memberIDs []string

	messageErr error
	memberErr  error
}

// fetchMessageContext loads the full message and the conversation members
// concurrently.
func fetchMessageContext(ctx context.Context, messages ports.MessageReader, memberships ports.MembershipRepository, conversationID, messageID string) messageContext {
	var (
		g   errgroup.Group
		out messageContext
	)

	g.Go(func() error {
		out.message, out.messageErr = messages.GetMessage(ctx, conversationID, messageID)
		return nil
	})
	g.Go(func() error {
		out.memberIDs, out.memberErr = memberships.ListMemberIDs(ctx, conversationID)
		return nil
	})
	_ = g.Wait()

	return out
}
