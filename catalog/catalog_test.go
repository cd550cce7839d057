package catalog

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botchat/config"
	"botchat/model"
	"botchat/provider"
	"botchat/provider/testutil"
	"botchat/storage"
)

func newTestCatalog(t *testing.T, opts Options) *Catalog {
	t.Helper()
	if opts.KV == nil {
		opts.KV = storage.NewMemoryKV()
	}
	c := New(opts)
	require.NoError(t, c.Load(context.Background()))
	return c
}

func TestLoadSeedsDefaults(t *testing.T) {
	kv := storage.NewMemoryKV()
	c := newTestCatalog(t, Options{KV: kv})

	suppliers := c.Suppliers()
	require.Len(t, suppliers, 8)
	assert.Equal(t, "deepseek", suppliers[0].Name)
	assert.Empty(t, c.AvailableModels(), "no supplier has a key yet")

	ok, err := kv.Has(context.Background(), snapshotKey)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoadKeepsSnapshotAndAppendsNewDefaults(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	stored := []model.Supplier{{Name: "deepseek", Label: "Renamed", APIURL: "https://proxy.example.com"}}
	require.NoError(t, storage.SetJSON(ctx, kv, snapshotKey, stored))

	c := newTestCatalog(t, Options{KV: kv})

	s, err := c.Supplier("deepseek")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", s.Label)
	assert.Equal(t, "https://proxy.example.com", s.APIURL)
	assert.Len(t, c.Suppliers(), 8)
}

func TestLoadOverlaysCredentialsAndEndpoints(t *testing.T) {
	dir := t.TempDir()
	creds := config.NewCredentialStore(config.SecurityPlainText, "")
	creds.Set("kimi", "sk-kimi")

	kv := storage.NewMemoryKV()
	c := newTestCatalog(t, Options{
		KV:          kv,
		Credentials: creds,
		DataDir:     dir,
		Endpoints: func(name string) (string, bool) {
			if name == "kimi" {
				return "https://kimi.internal/v1", true
			}
			return "", false
		},
	})

	s, err := c.Supplier("kimi")
	require.NoError(t, err)
	assert.Equal(t, "sk-kimi", s.APIKey)
	assert.Equal(t, "https://kimi.internal/v1", s.APIURL)

	available := c.AvailableModels()
	require.Len(t, available, 1)
	assert.Equal(t, "kimi/moonshot-v1-auto", available[0].Ref)
	assert.Equal(t, "moonshot-v1", available[0].Group)

	var snapshot []model.Supplier
	_, err = storage.GetJSON(context.Background(), kv, snapshotKey, &snapshot)
	require.NoError(t, err)
	for _, s := range snapshot {
		assert.Empty(t, s.APIKey, "keys stay in the credential store")
	}
}

func TestResolve(t *testing.T) {
	c := newTestCatalog(t, Options{})

	tests := []struct {
		ref     string
		model   string
		wantErr error
	}{
		{ref: "siliconflow/deepseek-ai/DeepSeek-R1", model: "DeepSeek-R1"},
		{ref: "deepseek/deepseek-chat", model: "DeepSeek-V3"},
		{ref: "deepseek/unknown", wantErr: ErrModelNotFound},
		{ref: "nobody/gpt", wantErr: ErrSupplierNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			_, m, err := c.Resolve(tt.ref)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.model, m.Name)
		})
	}

	_, _, err := c.Resolve("no-separator")
	assert.Error(t, err)
}

func TestUpdateSupplierConfig(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	kv := storage.NewMemoryKV()
	creds := config.NewCredentialStore(config.SecurityPlainText, "")
	c := newTestCatalog(t, Options{KV: kv, Credentials: creds, DataDir: dir})

	var notified []uint64
	c.Subscribe(func(supplier string, gen uint64) {
		assert.Equal(t, "openai", supplier)
		notified = append(notified, gen)
	})

	require.Equal(t, uint64(0), c.Generation("openai"))
	require.NoError(t, c.UpdateSupplierConfig(ctx, "openai", "sk-1", "https://api.openai.com/v1"))
	require.NoError(t, c.UpdateSupplierConfig(ctx, "openai", "sk-2", "https://gateway.example.com/v1"))

	assert.Equal(t, uint64(2), c.Generation("openai"))
	assert.Equal(t, []uint64{1, 2}, notified)

	cfg, err := c.ProviderConfig("openai/gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "sk-2", cfg.APIKey)
	assert.Equal(t, "https://gateway.example.com/v1", cfg.BaseURL)
	assert.Equal(t, "gpt-4o", cfg.Model)

	// The key survives a restart through the credential file.
	reloaded := config.NewCredentialStore(config.SecurityPlainText, "")
	require.NoError(t, reloaded.Load(dir))
	again := newTestCatalog(t, Options{KV: kv, Credentials: reloaded, DataDir: dir})
	s, err := again.Supplier("openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-2", s.APIKey)
	assert.Equal(t, "https://gateway.example.com/v1", s.APIURL)

	err = c.UpdateSupplierConfig(ctx, "missing", "k", "u")
	assert.ErrorIs(t, err, ErrSupplierNotFound)
}

func TestChangedURLSurvivesOverride(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	overrides := map[string]string{"kimi": "https://kimi.internal/v1"}
	var saved int
	opts := Options{
		KV: kv,
		Endpoints: func(name string) (string, bool) {
			url, ok := overrides[name]
			return url, ok
		},
		SaveEndpoint: func(name, url string) error {
			saved++
			overrides[name] = url
			return nil
		},
	}
	c := newTestCatalog(t, opts)

	require.NoError(t, c.UpdateSupplierConfig(ctx, "kimi", "sk-1", "https://kimi.internal/v1"))
	assert.Equal(t, 0, saved, "unchanged url is not rewritten")
	require.NoError(t, c.UpdateSupplierConfig(ctx, "kimi", "sk-1", "https://kimi.proxy/v1"))
	assert.Equal(t, 1, saved)

	again := newTestCatalog(t, opts)
	s, err := again.Supplier("kimi")
	require.NoError(t, err)
	assert.Equal(t, "https://kimi.proxy/v1", s.APIURL)
}

func TestFailedCredentialSaveLeavesSupplier(t *testing.T) {
	ctx := context.Background()
	creds := config.NewCredentialStore(config.SecurityPlainText, "")
	missing := filepath.Join(t.TempDir(), "absent")
	c := newTestCatalog(t, Options{Credentials: creds, DataDir: missing})

	err := c.UpdateSupplierConfig(ctx, "openai", "sk-new", "https://api.openai.com/v1")
	require.Error(t, err)

	s, err := c.Supplier("openai")
	require.NoError(t, err)
	assert.Empty(t, s.APIKey)
	assert.Empty(t, creds.Get("openai"))
	assert.Equal(t, uint64(0), c.Generation("openai"))
}

func TestReloadCredentials(t *testing.T) {
	creds := config.NewCredentialStore(config.SecurityPlainText, "")
	c := newTestCatalog(t, Options{Credentials: creds, DataDir: t.TempDir()})

	var notified []string
	c.Subscribe(func(supplier string, _ uint64) { notified = append(notified, supplier) })

	creds.Set("deepseek", "sk-late")
	c.ReloadCredentials()
	c.ReloadCredentials()

	s, err := c.Supplier("deepseek")
	require.NoError(t, err)
	assert.Equal(t, "sk-late", s.APIKey)
	assert.Equal(t, uint64(1), c.Generation("deepseek"))
	assert.Equal(t, []string{"deepseek"}, notified)
}

func TestModelMutations(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t, Options{})

	group, err := c.AddModelGroup(ctx, "kimi")
	require.NoError(t, err)
	assert.Equal(t, NewGroupName, group.GroupName)
	require.NoError(t, c.RenameModelGroup(ctx, "kimi", group.ID, "k2"))

	m, err := c.AddModel(ctx, "kimi", group.ID)
	require.NoError(t, err)
	assert.Regexp(t, `^new-[0-9a-f]{8}$`, m.ID)
	assert.Equal(t, NewModelName, m.Name)

	require.NoError(t, c.RenameModel(ctx, "kimi", m.ID, "Kimi K2"))
	err = c.UpdateModelID(ctx, "kimi", m.ID, "moonshot-v1-auto")
	assert.ErrorIs(t, err, ErrDuplicateModel)
	require.NoError(t, c.UpdateModelID(ctx, "kimi", m.ID, "kimi-k2"))

	_, resolved, err := c.Resolve("kimi/kimi-k2")
	require.NoError(t, err)
	assert.Equal(t, "Kimi K2", resolved.Name)

	s, err := c.Supplier("kimi")
	require.NoError(t, err)
	require.Len(t, s.ModelGroups, 2)
	assert.Equal(t, "k2", s.ModelGroups[1].GroupName)

	ref, err := c.RemoveModel(ctx, "kimi", "kimi-k2")
	require.NoError(t, err)
	assert.Equal(t, "kimi/kimi-k2", ref)
	_, _, err = c.Resolve(ref)
	assert.ErrorIs(t, err, ErrModelNotFound)

	_, err = c.RemoveModel(ctx, "kimi", "kimi-k2")
	assert.ErrorIs(t, err, ErrModelNotFound)
	_, err = c.AddModel(ctx, "kimi", "no-such-group")
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestConcurrentMutationsArePersisted(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	c := newTestCatalog(t, Options{KV: kv})
	group, err := c.AddModelGroup(ctx, "kimi")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.AddModel(ctx, "kimi", group.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	reloaded := newTestCatalog(t, Options{KV: kv})
	s, err := reloaded.Supplier("kimi")
	require.NoError(t, err)
	gi, err := findGroup(&s, group.ID)
	require.NoError(t, err)
	assert.Len(t, s.ModelGroups[gi].Models, 16)
}

func TestRemoveModelGroupReturnsRefs(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemoryKV()
	c := newTestCatalog(t, Options{KV: kv})

	refs, err := c.RemoveModelGroup(ctx, "openai", "541dfad0-95b1-45ac-9ecf-e5ef1d263172")
	require.NoError(t, err)
	assert.Equal(t, []string{"openai/gpt-4o", "openai/gpt-4o-mini"}, refs)

	// Persisted before returning.
	again := newTestCatalog(t, Options{KV: kv})
	s, err := again.Supplier("openai")
	require.NoError(t, err)
	require.Len(t, s.ModelGroups, 1)
	assert.Equal(t, "o1", s.ModelGroups[0].GroupName)
}

func TestReadersGetCopies(t *testing.T) {
	c := newTestCatalog(t, Options{})

	s, err := c.Supplier("openai")
	require.NoError(t, err)
	s.ModelGroups[0].Models[0].Name = "mutated"

	again, err := c.Supplier("openai")
	require.NoError(t, err)
	assert.Equal(t, "GPT-4o", again.ModelGroups[0].Models[0].Name)
}

func TestVerifyAll(t *testing.T) {
	ctx := context.Background()
	c := newTestCatalog(t, Options{})
	require.NoError(t, c.UpdateSupplierConfig(ctx, "openai", "sk-good", "https://api.openai.com/v1"))
	require.NoError(t, c.UpdateSupplierConfig(ctx, "kimi", "sk-bad", "https://api.moonshot.cn/v1"))

	var calls atomic.Int32
	rejected := errors.New("401")
	c.ping = func(_ context.Context, cfg provider.Config) error {
		calls.Add(1)
		if cfg.APIKey == "sk-bad" {
			return rejected
		}
		return nil
	}

	results := c.VerifyAll(ctx)

	require.Len(t, results, 2)
	assert.Equal(t, int32(2), calls.Load(), "suppliers without a key are skipped")
	assert.Equal(t, provider.PingResult{Supplier: "openai", Valid: true}, results[0])
	assert.Equal(t, "kimi", results[1].Supplier)
	assert.False(t, results[1].Valid)
	assert.ErrorIs(t, results[1].Err, rejected)
}

func TestVerifyAgainstServer(t *testing.T) {
	srv := testutil.NewMockServer(t, testutil.JSONHandler(http.StatusOK,
		`{"object":"list","data":[{"id":"moonshot-v1-auto","object":"model","created":1,"owned_by":"moonshot"}]}`))

	c := newTestCatalog(t, Options{})
	require.NoError(t, c.UpdateSupplierConfig(context.Background(), "kimi", "sk-kimi", srv.URL))

	result := c.Verify(context.Background(), "kimi")

	assert.True(t, result.Valid)
	assert.NoError(t, result.Err)
	require.Equal(t, 1, srv.Hits())
	assert.Equal(t, "Bearer sk-kimi", srv.Requests()[0].Authorization)

	missing := c.Verify(context.Background(), "nobody")
	assert.ErrorIs(t, missing.Err, ErrSupplierNotFound)
}
