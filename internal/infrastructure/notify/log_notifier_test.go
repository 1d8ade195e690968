package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/purchase-approval/internal/application/port"
	"github.com/garyjia/purchase-approval/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// mockDirectory implements only FindByID; other methods panic through the nil embedded interface
type mockDirectory struct {
	port.UserDirectory
	FindByIDFunc func(ctx context.Context, id int64) (*entity.User, error)
}

func (m *mockDirectory) FindByID(ctx context.Context, id int64) (*entity.User, error) {
	return m.FindByIDFunc(ctx, id)
}

func TestLogNotifier_Notify(t *testing.T) {
	tests := []struct {
		name     string
		user     *entity.User
		findErr  error
		wantErr  bool
		wantLogs int
	}{
		{name: "active recipient", user: &entity.User{ID: 4, Email: "director@school.test", Active: true}, wantLogs: 1},
		{name: "inactive recipient", user: &entity.User{ID: 4, Active: false}, wantErr: true},
		{name: "unknown recipient", wantErr: true},
		{name: "lookup fails", findErr: errors.New("db closed"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)
			dir := &mockDirectory{FindByIDFunc: func(ctx context.Context, id int64) (*entity.User, error) {
				return tt.user, tt.findErr
			}}
			notifier := NewLogNotifier(dir, zap.New(core))

			err := notifier.Notify(context.Background(), port.Notification{
				RecipientID: 4,
				RequestID:   9,
				Subject:     "Purchase request #9 awaits your approval",
			})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			require.Equal(t, tt.wantLogs, logs.Len())
			if tt.wantLogs > 0 {
				fields := logs.All()[0].ContextMap()
				assert.Equal(t, "director@school.test", fields["to"])
				assert.Equal(t, int64(9), fields["request_id"])
			}
		})
	}
}
