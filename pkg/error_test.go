package pkg

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransferStatus_String(t *testing.T) {
	tests := []struct {
		status TransferStatus
		want   string
	}{
		{TransferStatusSuccess, "success"},
		{TransferStatusError, "error"},
		{TransferStatusStall, "stall"},
		{TransferStatusTimeout, "timeout"},
		{TransferStatusInvalid, "invalid"},
		{TransferStatusCancelled, "cancelled"},
		{TransferStatus(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
		})
	}
}

func TestTransferStatus_Error(t *testing.T) {
	tests := []struct {
		status  TransferStatus
		wantErr error
	}{
		{TransferStatusSuccess, nil},
		{TransferStatusStall, ErrStall},
		{TransferStatusTimeout, ErrTimeout},
		{TransferStatusInvalid, ErrInvalidRequest},
		{TransferStatusCancelled, ErrCancelled},
		{TransferStatusError, ErrProtocol},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			err := tt.status.Error()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFatalError(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", &FatalError{
		Component: ComponentIRQ,
		Status:    1 << 19,
		Err:       ErrUnhandledInterrupt,
	})

	assert.ErrorIs(t, err, ErrUnhandledInterrupt)

	var fatal *FatalError
	require.True(t, errors.As(err, &fatal))
	assert.Equal(t, uint32(1<<19), fatal.Status)
	assert.Contains(t, err.Error(), "0x00080000")
}

func TestAbort(t *testing.T) {
	assert.PanicsWithError(t, ErrDataSequence.Error(), func() {
		Abort(ErrDataSequence)
	})
}
