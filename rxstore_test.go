package rxstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gxo-labs/rxstore"
	"github.com/gxo-labs/rxstore/internal/logger"
	rxv1 "github.com/gxo-labs/rxstore/pkg/rxstore/v1"
	rxerrors "github.com/gxo-labs/rxstore/pkg/rxstore/v1/errors"
	rxstate "github.com/gxo-labs/rxstore/pkg/rxstore/v1/state"
)

func TestNew(t *testing.T) {
	s, err := rxstore.New(rxv1.WithName("cart"), rxv1.WithLogger(logger.NewDiscardLogger()))
	require.NoError(t, err)
	defer s.Dispose()

	items := rxstore.Bind[[]string](s, "items")
	items.Set([]string{"apple"})

	got, ok := items.Get()
	require.True(t, ok)
	assert.Equal(t, []string{"apple"}, got)
	assert.Equal(t, "cart", s.Name())
}

func TestNew_OptionError(t *testing.T) {
	_, err := rxstore.New(rxv1.WithName(""))
	var ce *rxerrors.ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestNewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rxstore.yaml")
	doc := `
schemaVersion: "1.0.0"
store:
  name: profile
  history_capacity: 2
fetch_profiles:
  me:
    retry_count: 1
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	s, settings, err := rxstore.NewFromFile(path, rxv1.WithLogger(logger.NewDiscardLogger()))
	require.NoError(t, err)
	defer s.Dispose()
	assert.Equal(t, "profile", s.Name())

	for i := 1; i <= 3; i++ {
		s.Dispatch("n", i)
	}
	assert.Len(t, s.History(), 2, "history_capacity from the file bounds the ledger")

	profile, ok := settings.Profile("me")
	require.True(t, ok)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	calls := 0
	v, err := s.FetchDataAuto(ctx, "me", func(context.Context) (interface{}, error) {
		calls++
		return rxstate.Tree{"id": 7}, nil
	}, profile).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, rxstate.Tree{"id": 7}, v)
	assert.Equal(t, 1, calls)
	assert.Equal(t, rxstate.Tree{"id": 7}, s.GetStateByKey("me"))
}

func TestNewFromFile_Missing(t *testing.T) {
	_, _, err := rxstore.NewFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	var ce *rxerrors.ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestRegistry(t *testing.T) {
	r := rxstore.NewRegistry(logger.NewDiscardLogger())
	defer r.DisposeAll()

	factory := func(id string) (rxv1.StoreV1, error) {
		return rxstore.New(rxv1.WithName(id), rxv1.WithLogger(logger.NewDiscardLogger()))
	}
	a, err := r.GetOrCreate("a", factory)
	require.NoError(t, err)
	again, err := r.GetOrCreate("a", factory)
	require.NoError(t, err)
	assert.Same(t, a, again)
	assert.Equal(t, []string{"a"}, r.List())
}

func TestHub(t *testing.T) {
	hub := rxstore.NewHub(logger.NewDiscardLogger())
	defer hub.DisposeAll()

	var got []interface{}
	sub := hub.Listen("logout", func(v interface{}) { got = append(got, v) })
	hub.Emit("logout", "expired")
	hub.Emit("other", "ignored")
	sub.Unsubscribe()
	hub.Emit("logout", "late")

	assert.Equal(t, []interface{}{"expired"}, got)
}
