package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu      sync.Mutex
	updates []discordgo.UpdateStatusData
	err     error
}

func (g *fakeGateway) UpdateStatusComplex(usd discordgo.UpdateStatusData) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updates = append(g.updates, usd)
	return g.err
}

func (g *fakeGateway) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.updates)
}

func TestPresenceTransitions(t *testing.T) {
	gw := &fakeGateway{}
	pm := NewPresenceManager(gw, func() (int, int) { return 3, 1 }, nil)

	pm.UpdateMusicPresence("Umapyoi Densetsu")
	kind, title := pm.GetCurrentPresence()
	assert.Equal(t, KindMusic, kind)
	assert.Equal(t, "Umapyoi Densetsu", title)

	pm.ClearMusicPresence()
	kind, title = pm.GetCurrentPresence()
	assert.Equal(t, KindDefault, kind)
	assert.Empty(t, title)

	require.Len(t, gw.updates, 2)
	assert.Equal(t, discordgo.ActivityTypeListening, gw.updates[0].Activities[0].Type)
	assert.Equal(t, "Umapyoi Densetsu", gw.updates[0].Activities[0].State)
	assert.Equal(t, "radio in 1 servers", gw.updates[1].Activities[0].Name)
	assert.Equal(t, "of 3 servers", gw.updates[1].Activities[0].State)
}

func TestPresenceGatewayError(t *testing.T) {
	gw := &fakeGateway{err: errors.New("gateway closed")}
	pm := NewPresenceManager(gw, nil, nil)

	pm.UpdateMusicPresence("x")
	kind, _ := pm.GetCurrentPresence()
	assert.Equal(t, KindMusic, kind)
}

func TestPeriodicUpdates(t *testing.T) {
	gw := &fakeGateway{}
	pm := NewPresenceManager(gw, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pm.StartPeriodicUpdates(ctx, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return gw.count() >= 2 }, time.Second, time.Millisecond)
}

func TestPeriodicUpdatesSkipMusic(t *testing.T) {
	gw := &fakeGateway{}
	pm := NewPresenceManager(gw, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pm.UpdateMusicPresence("x")
	pm.StartPeriodicUpdates(ctx, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, gw.count())
}
