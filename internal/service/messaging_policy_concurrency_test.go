package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorlink-api/internal/models"
)

func TestConcurrentDecisionsWriteOneRowEach(t *testing.T) {
	f := newMessagingFixture(t)
	sqlDB, err := f.db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	student := f.user(t, models.RoleStudent)
	teacher := f.user(t, models.RoleTeacher)
	outsider := f.user(t, models.RoleStudent)
	f.booking(t, student, teacher, models.BookingStatusApproved)
	conversation := f.conversation(t, models.ConversationTypeDirect, student, teacher)

	const workers = 8
	const perWorker = 10

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		actor := student
		if w%2 == 1 {
			actor = outsider
		}
		wg.Add(1)
		go func(actor Actor) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := f.policy.CanSendMessage(context.Background(), actor, conversation); err != nil {
					errs <- err
				}
			}
		}(actor)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.EqualValues(t, workers*perWorker, f.auditCount(t))

	var denied int64
	require.NoError(t, f.db.Model(&models.AuthorizationAuditLog{}).Where("granted = ?", false).Count(&denied).Error)
	require.EqualValues(t, workers*perWorker/2, denied)
}

func BenchmarkRoleRuleResolver(b *testing.B) {
	resolver := NewRoleRuleResolver(&fakeFacts{active: map[[2]uint]bool{{1, 2}: true}})
	student := NewActor(1, models.RoleStudent)
	teacher := NewActor(2, models.RoleTeacher)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = resolver.Resolve(ctx, student, teacher)
	}
}
