package container

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabric-actor/kernel/internal/clock"
	"github.com/fabric-actor/kernel/internal/policy"
	"github.com/fabric-actor/kernel/pkg/logger"
)

func TestBuildPolicySelectsByName(t *testing.T) {
	log := logger.NewDefault()
	ck := clock.New(1000, time.Unix(0, 0))

	simple, err := buildPolicy("simple", log, ck)
	require.NoError(t, err)
	assert.IsType(t, &policy.Simple{}, simple)

	batch, err := buildPolicy("batch_on_tick", log, ck)
	require.NoError(t, err)
	assert.IsType(t, &policy.BatchOnTick{}, batch)

	review, err := buildPolicy("ticket_review", log, ck)
	require.NoError(t, err)
	assert.IsType(t, &policy.TicketReview{}, review)

	_, err = buildPolicy("nonexistent", log, ck)
	require.Error(t, err)
}

func TestParseEpochDefaultsToUnixZero(t *testing.T) {
	epoch, err := parseEpoch("")
	require.NoError(t, err)
	assert.Equal(t, time.Unix(0, 0), epoch)
}

func TestParseEpochParsesRFC3339(t *testing.T) {
	epoch, err := parseEpoch("2024-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, 2024, epoch.Year())

	_, err = parseEpoch("not-a-date")
	require.Error(t, err)
}
