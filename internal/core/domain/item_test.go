package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var gasket = ItemIdentity{Type: "Gasket", Key: "g-100"}

func newPending(t *testing.T, declared int) DeliveryItem {
	t.Helper()
	it, err := NewDeliveryItem("item-1", "del-1", gasket, "colombo", declared, "", time.Now())
	require.NoError(t, err)
	return it
}

func TestNewDeliveryItem(t *testing.T) {
	it := newPending(t, 10)

	assert.Equal(t, ItemStatusPending, it.Status)
	assert.Equal(t, MarkedByUnmarked, it.MarkedBy)
	assert.Equal(t, 0, it.ReceivedQuantity)
	assert.Equal(t, 0, it.ReturnedQuantity)
	assert.Equal(t, 1, it.Version)
	assert.NoError(t, it.Validate())
}

func TestNewDeliveryItem_Rejects(t *testing.T) {
	tests := []struct {
		name     string
		item     ItemIdentity
		source   string
		declared int
		want     error
	}{
		{"zero quantity", gasket, "colombo", 0, ErrInvalidQuantity},
		{"negative quantity", gasket, "colombo", -3, ErrInvalidQuantity},
		{"missing type", ItemIdentity{Key: "x"}, "colombo", 1, ErrInvalidItemIdentity},
		{"missing key", ItemIdentity{Type: "Ring"}, "colombo", 1, ErrInvalidItemIdentity},
		{"missing location", gasket, " ", 1, ErrInvalidLocation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDeliveryItem("id", "del", tt.item, tt.source, tt.declared, "", time.Now())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReceive_FullCountForcesStaffMarker(t *testing.T) {
	it := newPending(t, 10)

	next, err := it.Receive("kamal", 10, time.Now())
	require.NoError(t, err)

	assert.Equal(t, ItemStatusReceived, next.Status)
	assert.Equal(t, MarkedByStaff, next.MarkedBy)
	assert.Equal(t, 10, next.ReceivedQuantity)
	assert.Equal(t, 2, next.Version)
	assert.NoError(t, next.Validate())

	// the original value is untouched
	assert.Equal(t, ItemStatusPending, it.Status)
}

func TestReceive_PartialCount(t *testing.T) {
	it := newPending(t, 5)

	next, err := it.Receive("nimal", 3, time.Now())
	require.NoError(t, err)

	assert.Equal(t, ItemStatusCountMismatch, next.Status)
	assert.Equal(t, "nimal", next.MarkedBy)
	assert.Equal(t, 3, next.ReceivedQuantity)
	assert.NoError(t, next.Validate())
}

func TestReceive_ZeroIsTotalShortfall(t *testing.T) {
	it := newPending(t, 5)

	next, err := it.Receive("nimal", 0, time.Now())
	require.NoError(t, err)

	assert.Equal(t, ItemStatusCountMismatch, next.Status)
	assert.Equal(t, 0, next.ReceivedQuantity)
	assert.NoError(t, next.Validate())
}

func TestReceive_OutOfRange(t *testing.T) {
	it := newPending(t, 5)

	_, err := it.Receive("nimal", 6, time.Now())
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = it.Receive("nimal", -1, time.Now())
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestReceive_MismatchNeedsReceiver(t *testing.T) {
	it := newPending(t, 5)

	_, err := it.Receive("", 3, time.Now())
	assert.ErrorIs(t, err, ErrInvalidReceiver)

	_, err = it.Receive(strings.Repeat("n", MaxIdentityLength+1), 3, time.Now())
	assert.ErrorIs(t, err, ErrInvalidReceiver)

	next, err := it.Receive(strings.Repeat("n", MaxIdentityLength), 3, time.Now())
	require.NoError(t, err)
	assert.Len(t, next.MarkedBy, MaxIdentityLength)

	full, err := it.Receive("", 5, time.Now())
	require.NoError(t, err)
	assert.Equal(t, MarkedByStaff, full.MarkedBy)
}

func TestNewDeliveryItem_AssigneeTooLong(t *testing.T) {
	_, err := NewDeliveryItem("id", "del", gasket, "colombo", 1, strings.Repeat("a", MaxIdentityLength+1), time.Now())
	assert.ErrorIs(t, err, ErrInvalidReceiver)
}

func TestReceive_Recount(t *testing.T) {
	it := newPending(t, 5)

	first, err := it.Receive("nimal", 3, time.Now())
	require.NoError(t, err)

	second, err := first.Receive("sunil", 5, time.Now())
	require.NoError(t, err)
	assert.Equal(t, ItemStatusReceived, second.Status)
	assert.Equal(t, MarkedByStaff, second.MarkedBy)
	assert.Equal(t, 3, second.Version)
}

func TestReceive_FinalizedItems(t *testing.T) {
	it := newPending(t, 4)

	received, err := it.Receive("x", 4, time.Now())
	require.NoError(t, err)
	_, err = received.Receive("x", 4, time.Now())
	assert.ErrorIs(t, err, ErrAlreadyFinalized)

	mismatch, err := it.Receive("x", 1, time.Now())
	require.NoError(t, err)
	returned, _, err := mismatch.Resolve(ResolutionWriteOff, time.Now())
	require.NoError(t, err)
	_, err = returned.Receive("x", 1, time.Now())
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name       string
		resolution Resolution
		wantCredit int
	}{
		{"return to sender credits shortfall", ResolutionReturnToSender, 2},
		{"write off credits nothing", ResolutionWriteOff, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := newPending(t, 5)
			mismatch, err := it.Receive("nimal", 3, time.Now())
			require.NoError(t, err)

			next, credit, err := mismatch.Resolve(tt.resolution, time.Now())
			require.NoError(t, err)

			assert.Equal(t, tt.wantCredit, credit)
			assert.Equal(t, ItemStatusReturned, next.Status)
			assert.Equal(t, 2, next.ReturnedQuantity)
			assert.Equal(t, tt.resolution, next.Resolution)
			assert.Equal(t, next.DeclaredQuantity, next.ReceivedQuantity+next.ReturnedQuantity)
			assert.NoError(t, next.Validate())
		})
	}
}

func TestResolve_OnlyFromMismatch(t *testing.T) {
	it := newPending(t, 5)

	_, _, err := it.Resolve(ResolutionReturnToSender, time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	received, err := it.Receive("x", 5, time.Now())
	require.NoError(t, err)
	_, _, err = received.Resolve(ResolutionWriteOff, time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	mismatch, err := it.Receive("x", 1, time.Now())
	require.NoError(t, err)
	_, _, err = mismatch.Resolve("burn", time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	returned, _, err := mismatch.Resolve(ResolutionWriteOff, time.Now())
	require.NoError(t, err)
	_, _, err = returned.Resolve(ResolutionWriteOff, time.Now())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestValidate_DetectsBrokenItems(t *testing.T) {
	base := newPending(t, 5)

	broken := base
	broken.ReceivedQuantity = 4
	broken.ReturnedQuantity = 2
	assert.Error(t, broken.Validate())

	broken = base
	broken.Status = ItemStatusReceived
	broken.ReceivedQuantity = 5
	broken.MarkedBy = "kamal"
	assert.Error(t, broken.Validate())

	broken = base
	broken.Status = ItemStatusReturned
	broken.ReceivedQuantity = 1
	broken.ReturnedQuantity = 1
	assert.Error(t, broken.Validate())

	broken = base
	broken.Status = "Lost"
	assert.Error(t, broken.Validate())
}
