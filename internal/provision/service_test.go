package provision

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest"

	"github.com/cedros/claw-spawn/internal/config"
	"github.com/cedros/claw-spawn/internal/digitalocean"
	"github.com/cedros/claw-spawn/internal/metrics"
	"github.com/cedros/claw-spawn/internal/model"
	"github.com/cedros/claw-spawn/internal/store"
)

// fakeBackend is an in-memory stand-in for the persistence layer. It
// implements every store interface the service consumes and records
// the calls the saga tests assert on.
type fakeBackend struct {
	mu sync.Mutex

	accounts map[uuid.UUID]*model.Account
	bots     map[uuid.UUID]*model.Bot
	configs  []*model.StoredBotConfig
	droplets map[int64]*model.Droplet

	counts  map[uuid.UUID]int
	maxBots int

	tokens      map[uuid.UUID]string
	hardDeleted []uuid.UUID
	decrements  int

	createBotErr     error
	createConfigErr  error
	createDropletErr error
	decrementErr     error
	markDestroyedErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		accounts: map[uuid.UUID]*model.Account{},
		bots:     map[uuid.UUID]*model.Bot{},
		droplets: map[int64]*model.Droplet{},
		counts:   map[uuid.UUID]int{},
		maxBots:  2,
		tokens:   map[uuid.UUID]string{},
	}
}

func (f *fakeBackend) addAccount() *model.Account {
	account := model.NewAccount("acct-"+uuid.NewString()[:8], model.TierBasic)
	f.accounts[account.ID] = account
	return account
}

func (f *fakeBackend) GetAccountByID(_ context.Context, id uuid.UUID) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[id]; ok {
		return a, nil
	}
	return nil, errors.Wrapf(store.ErrNotFound, "account %s", id)
}

func (f *fakeBackend) CreateBot(_ context.Context, bot *model.Bot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createBotErr != nil {
		return f.createBotErr
	}
	clone := *bot
	f.bots[bot.ID] = &clone
	return nil
}

func (f *fakeBackend) GetBotByID(_ context.Context, id uuid.UUID) (*model.Bot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.bots[id]; ok {
		clone := *b
		return &clone, nil
	}
	return nil, errors.Wrapf(store.ErrNotFound, "bot %s", id)
}

func (f *fakeBackend) UpdateBotStatus(_ context.Context, id uuid.UUID, status model.BotStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.bots[id]; ok {
		b.Status = status
	}
	return nil
}

func (f *fakeBackend) UpdateBotDroplet(_ context.Context, botID uuid.UUID, dropletID *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.bots[botID]; ok {
		b.DropletID = dropletID
	}
	return nil
}

func (f *fakeBackend) UpdateBotConfigVersion(_ context.Context, botID uuid.UUID, desired, applied *uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.bots[botID]; ok {
		b.DesiredConfigVersionID = desired
		b.AppliedConfigVersionID = applied
	}
	return nil
}

func (f *fakeBackend) UpdateBotRegistrationToken(_ context.Context, botID uuid.UUID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[botID] = token
	return nil
}

func (f *fakeBackend) DeleteBot(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.bots[id]; ok {
		b.Status = model.BotStatusDestroyed
	}
	return nil
}

func (f *fakeBackend) HardDeleteBot(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.bots, id)
	f.hardDeleted = append(f.hardDeleted, id)
	return nil
}

func (f *fakeBackend) IncrementBotCounter(_ context.Context, accountID uuid.UUID) (*store.QuotaDecision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current := f.counts[accountID]
	if current >= f.maxBots {
		return &store.QuotaDecision{Allowed: false, CurrentCount: current, MaxCount: f.maxBots}, nil
	}
	f.counts[accountID] = current + 1
	return &store.QuotaDecision{Allowed: true, CurrentCount: current + 1, MaxCount: f.maxBots}, nil
}

func (f *fakeBackend) DecrementBotCounter(_ context.Context, accountID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.decrementErr != nil {
		return f.decrementErr
	}
	if f.counts[accountID] > 0 {
		f.counts[accountID]--
	}
	f.decrements++
	return nil
}

func (f *fakeBackend) CreateConfig(_ context.Context, cfg *model.StoredBotConfig) (*model.StoredBotConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createConfigErr != nil {
		return nil, f.createConfigErr
	}
	stored := *cfg
	stored.Version = 1
	for _, existing := range f.configs {
		if existing.BotID == cfg.BotID && existing.Version >= stored.Version {
			stored.Version = existing.Version + 1
		}
	}
	f.configs = append(f.configs, &stored)
	clone := stored
	return &clone, nil
}

func (f *fakeBackend) GetLatestConfigForBot(_ context.Context, botID uuid.UUID) (*model.StoredBotConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *model.StoredBotConfig
	for _, cfg := range f.configs {
		if cfg.BotID == botID && (latest == nil || cfg.Version > latest.Version) {
			latest = cfg
		}
	}
	if latest == nil {
		return nil, errors.Wrapf(store.ErrNotFound, "no config for bot %s", botID)
	}
	clone := *latest
	return &clone, nil
}

func (f *fakeBackend) CreateDroplet(_ context.Context, droplet *model.Droplet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createDropletErr != nil {
		return f.createDropletErr
	}
	clone := *droplet
	f.droplets[droplet.ID] = &clone
	return nil
}

func (f *fakeBackend) UpdateDropletBotAssignment(_ context.Context, dropletID int64, botID *uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.droplets[dropletID]; ok {
		d.BotID = botID
	}
	return nil
}

func (f *fakeBackend) UpdateDropletStatus(_ context.Context, dropletID int64, status model.DropletStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.droplets[dropletID]; ok {
		d.Status = status
	}
	return nil
}

func (f *fakeBackend) UpdateDropletIP(_ context.Context, dropletID int64, ip *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.droplets[dropletID]; ok {
		d.IPAddress = ip
	}
	return nil
}

func (f *fakeBackend) MarkDropletDestroyed(_ context.Context, dropletID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markDestroyedErr != nil {
		return f.markDestroyedErr
	}
	if d, ok := f.droplets[dropletID]; ok {
		d.Status = model.DropletStatusDestroyed
		if d.DestroyedAt == nil {
			now := time.Now().UTC()
			d.DestroyedAt = &now
		}
	}
	return nil
}

// fakeCloud is an in-memory DigitalOcean. Droplets created through it
// exist until destroyed; lookups of unknown ids return the same
// not-found classification the real client maps.
type fakeCloud struct {
	mu sync.Mutex

	nextID   int64
	droplets map[int64]*model.Droplet

	created   []digitalocean.CreateRequest
	destroyed []int64
	shutdown  []int64
	rebooted  []int64

	createErr  error
	getErr     error
	destroyErr error
}

func newFakeCloud() *fakeCloud {
	return &fakeCloud{nextID: 9000, droplets: map[int64]*model.Droplet{}}
}

func (f *fakeCloud) CreateDroplet(_ context.Context, req digitalocean.CreateRequest) (*model.Droplet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	d := &model.Droplet{
		ID:        f.nextID,
		Name:      req.Name,
		Region:    req.Region,
		Size:      req.Size,
		Image:     req.Image,
		Status:    model.DropletStatusNew,
		CreatedAt: time.Now().UTC(),
	}
	f.droplets[d.ID] = d
	clone := *d
	return &clone, nil
}

func (f *fakeCloud) GetDroplet(_ context.Context, dropletID int64) (*model.Droplet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if d, ok := f.droplets[dropletID]; ok {
		clone := *d
		return &clone, nil
	}
	return nil, &digitalocean.Error{Kind: digitalocean.KindNotFound, Message: fmt.Sprintf("droplet %d not found", dropletID)}
}

func (f *fakeCloud) DestroyDroplet(_ context.Context, dropletID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyErr != nil {
		return f.destroyErr
	}
	if _, ok := f.droplets[dropletID]; !ok {
		return &digitalocean.Error{Kind: digitalocean.KindNotFound, Message: fmt.Sprintf("droplet %d not found", dropletID)}
	}
	delete(f.droplets, dropletID)
	f.destroyed = append(f.destroyed, dropletID)
	return nil
}

func (f *fakeCloud) ShutdownDroplet(_ context.Context, dropletID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shutdown = append(f.shutdown, dropletID)
	if d, ok := f.droplets[dropletID]; ok {
		d.Status = model.DropletStatusOff
	}
	return nil
}

func (f *fakeCloud) RebootDroplet(_ context.Context, dropletID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rebooted = append(f.rebooted, dropletID)
	if d, ok := f.droplets[dropletID]; ok {
		d.Status = model.DropletStatusActive
	}
	return nil
}

type fakeEncryptor struct {
	err error
}

func (f *fakeEncryptor) Encrypt(plaintext string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("sealed:" + plaintext), nil
}

func newTestService(t *testing.T, backend *fakeBackend, cloud *fakeCloud) *Service {
	return newTestServiceWithEncryptor(t, backend, cloud, &fakeEncryptor{})
}

func newTestServiceWithEncryptor(t *testing.T, backend *fakeBackend, cloud *fakeCloud, enc SecretsEncryptor) *Service {
	return New(cloud, backend, backend, backend, backend, enc, metrics.New(), zaptest.NewLogger(t), Options{
		Image:           "ubuntu-22-04-x64",
		ControlPlaneURL: "https://cp.example.test",
		Customizer: config.CustomizerConfig{
			RepoURL:       "https://github.com/janebot2026/janebot-cli.git",
			Ref:           "4b170b4aa31f79bda84f7383b3992ca8681d06d3",
			WorkspaceDir:  "/opt/openclaw/workspace",
			AgentName:     "Jane",
			OwnerName:     "Cedros",
			SkipQMD:       true,
			SkipCron:      true,
			SkipGit:       true,
			SkipHeartbeat: true,
		},
		Toolchain: config.ToolchainConfig{
			NodeMajor:   22,
			InstallPnpm: true,
			PnpmVersion: "9.15.0",
			AptPackages: []string{"build-essential", "git", "curl", "jq"},
		},
	})
}

func testBotConfig() model.BotConfig {
	return model.BotConfig{
		TradingConfig: model.TradingConfig{
			AssetFocus: model.AssetFocusMajors,
			Algorithm:  model.AlgorithmTrend,
			Strictness: model.StrictnessMedium,
			PaperMode:  true,
		},
		RiskConfig: model.RiskConfig{
			MaxPositionSizePct: 10,
			MaxDailyLossPct:    5,
			MaxDrawdownPct:     20,
			MaxTradesPerDay:    12,
		},
		Secrets: model.BotSecrets{
			LLMProvider: "anthropic",
			LLMAPIKey:   "sk-ant-test",
		},
	}
}

// seedBotWithDroplet plants a bot plus its droplet on both sides of
// the fence, with one quota slot held.
func seedBotWithDroplet(backend *fakeBackend, cloud *fakeCloud, accountID uuid.UUID, botStatus model.BotStatus, dropletStatus model.DropletStatus) *model.Bot {
	bot := model.NewBot(accountID, "seeded", model.PersonaBeginner)
	bot.Status = botStatus

	cloud.nextID++
	dropletID := cloud.nextID
	droplet := &model.Droplet{
		ID:        dropletID,
		Name:      dropletName(bot.ID),
		Region:    dropletRegion,
		Size:      dropletSize,
		Image:     "ubuntu-22-04-x64",
		Status:    dropletStatus,
		CreatedAt: time.Now().UTC(),
	}
	cloud.droplets[dropletID] = droplet

	local := *droplet
	local.BotID = &bot.ID
	backend.droplets[dropletID] = &local

	bot.DropletID = &dropletID
	backend.bots[bot.ID] = bot
	backend.counts[accountID]++
	return bot
}

func TestCreateBot(t *testing.T) {
	g := NewGomegaWithT(t)

	backend := newFakeBackend()
	cloud := newFakeCloud()
	account := backend.addAccount()
	svc := newTestService(t, backend, cloud)

	bot, err := svc.CreateBot(context.Background(), account.ID, "Momentum Rider", model.PersonaTweaker, testBotConfig())
	g.Expect(err).ToNot(HaveOccurred())

	g.Expect(bot.Name).To(Equal("Momentum Rider"))
	g.Expect(bot.Status).To(Equal(model.BotStatusProvisioning))
	g.Expect(bot.DropletID).ToNot(BeNil())
	g.Expect(bot.DesiredConfigVersionID).ToNot(BeNil())
	g.Expect(backend.counts[account.ID]).To(Equal(1))

	g.Expect(cloud.created).To(HaveLen(1))
	req := cloud.created[0]
	want := digitalocean.CreateRequest{
		Name:   "openclaw-bot-" + bot.ID.String()[:8],
		Region: "nyc3",
		Size:   "s-1vcpu-2gb",
		Image:  "ubuntu-22-04-x64",
		// User-data contents are covered by TestBuildUserData.
		UserData: req.UserData,
		Tags:     []string{"openclaw", "bot-" + bot.ID.String()},
	}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Errorf("unexpected create request (-want +got):\n%s", diff)
	}

	stored := backend.bots[bot.ID]
	g.Expect(stored.Status).To(Equal(model.BotStatusProvisioning))
	g.Expect(stored.DropletID).ToNot(BeNil())
	g.Expect(*stored.DropletID).To(Equal(*bot.DropletID))

	cfg, err := backend.GetLatestConfigForBot(context.Background(), bot.ID)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(cfg.Version).To(Equal(1))
	g.Expect(cfg.Secrets.LLMProvider).To(Equal("anthropic"))
	g.Expect(cfg.Secrets.LLMAPIKeyEncrypted).To(Equal([]byte("sealed:sk-ant-test")))
	g.Expect(*stored.DesiredConfigVersionID).To(Equal(cfg.ID))
	g.Expect(stored.AppliedConfigVersionID).To(BeNil())

	droplet := backend.droplets[*bot.DropletID]
	g.Expect(droplet).ToNot(BeNil())
	g.Expect(droplet.BotID).ToNot(BeNil())
	g.Expect(*droplet.BotID).To(Equal(bot.ID))

	token := backend.tokens[bot.ID]
	g.Expect(token).ToNot(BeEmpty())
	g.Expect(req.UserData).To(ContainSubstring("REGISTRATION_TOKEN=\"" + token + "\""))
	g.Expect(req.UserData).To(ContainSubstring("BOT_ID=\"" + bot.ID.String() + "\""))
}

func TestCreateBotQuotaExhausted(t *testing.T) {
	g := NewGomegaWithT(t)

	backend := newFakeBackend()
	cloud := newFakeCloud()
	account := backend.addAccount()
	backend.counts[account.ID] = 2
	svc := newTestService(t, backend, cloud)

	_, err := svc.CreateBot(context.Background(), account.ID, "one too many", model.PersonaBeginner, testBotConfig())
	g.Expect(err).To(HaveOccurred())
	g.Expect(IsAccountLimitReached(err)).To(BeTrue())

	var limitErr *AccountLimitReachedError
	g.Expect(errors.As(err, &limitErr)).To(BeTrue())
	g.Expect(limitErr.Max).To(Equal(2))
	g.Expect(err.Error()).To(Equal("account limit reached: maximum 2 bots allowed"))

	g.Expect(backend.counts[account.ID]).To(Equal(2))
	g.Expect(backend.bots).To(BeEmpty())
	g.Expect(cloud.created).To(BeEmpty())
}

func TestCreateBotUnknownAccount(t *testing.T) {
	g := NewGomegaWithT(t)

	backend := newFakeBackend()
	cloud := newFakeCloud()
	svc := newTestService(t, backend, cloud)

	_, err := svc.CreateBot(context.Background(), uuid.New(), "ghost", model.PersonaBeginner, testBotConfig())
	g.Expect(err).To(HaveOccurred())
	g.Expect(store.IsNotFound(err)).To(BeTrue())
	g.Expect(backend.counts).To(BeEmpty())
	g.Expect(backend.bots).To(BeEmpty())
}

func TestCreateBotRateLimitedKeepsQuotaSlot(t *testing.T) {
	g := NewGomegaWithT(t)

	backend := newFakeBackend()
	cloud := newFakeCloud()
	account := backend.addAccount()
	cloud.createErr = &digitalocean.Error{Kind: digitalocean.KindRateLimited, Message: "rate limited"}
	svc := newTestService(t, backend, cloud)

	bot, err := svc.CreateBot(context.Background(), account.ID, "deferred", model.PersonaBeginner, testBotConfig())
	g.Expect(err).To(HaveOccurred())
	g.Expect(digitalocean.IsRateLimited(err)).To(BeTrue())
	g.Expect(bot).To(BeNil())

	// The bot row survives as pending with its quota slot still held
	// so a retry can finish the job.
	g.Expect(backend.hardDeleted).To(BeEmpty())
	g.Expect(backend.decrements).To(BeZero())
	g.Expect(backend.counts[account.ID]).To(Equal(1))
	g.Expect(backend.bots).To(HaveLen(1))
	for _, b := range backend.bots {
		g.Expect(b.Status).To(Equal(model.BotStatusPending))
	}
}

func TestCreateBotCreationFailureRollsBack(t *testing.T) {
	g := NewGomegaWithT(t)

	backend := newFakeBackend()
	cloud := newFakeCloud()
	account := backend.addAccount()
	cloud.createErr = &digitalocean.Error{Kind: digitalocean.KindCreationFailed, Message: "droplet creation failed: no capacity"}
	svc := newTestService(t, backend, cloud)

	_, err := svc.CreateBot(context.Background(), account.ID, "doomed", model.PersonaBeginner, testBotConfig())
	g.Expect(err).To(HaveOccurred())
	g.Expect(digitalocean.KindOf(err)).To(Equal(digitalocean.KindCreationFailed))

	g.Expect(backend.bots).To(BeEmpty())
	g.Expect(backend.hardDeleted).To(HaveLen(1))
	g.Expect(backend.decrements).To(Equal(1))
	g.Expect(backend.counts[account.ID]).To(BeZero())
}

func TestCreateBotEncryptFailureRollsBack(t *testing.T) {
	g := NewGomegaWithT(t)

	backend := newFakeBackend()
	cloud := newFakeCloud()
	account := backend.addAccount()
	svc := newTestServiceWithEncryptor(t, backend, cloud, &fakeEncryptor{err: errors.New("kms unavailable")})

	_, err := svc.CreateBot(context.Background(), account.ID, "sealed shut", model.PersonaBeginner, testBotConfig())
	g.Expect(err).To(HaveOccurred())
	g.Expect(err.Error()).To(ContainSubstring("failed to encrypt llm api key"))

	g.Expect(cloud.created).To(BeEmpty())
	g.Expect(backend.bots).To(BeEmpty())
	g.Expect(backend.counts[account.ID]).To(BeZero())
}

func TestCreateBotPersistenceFailureDestroysDroplet(t *testing.T) {
	g := NewGomegaWithT(t)

	backend := newFakeBackend()
	cloud := newFakeCloud()
	account := backend.addAccount()
	backend.createDropletErr = errors.New("connection reset")
	svc := newTestService(t, backend, cloud)

	_, err := svc.CreateBot(context.Background(), account.ID, "orphan risk", model.PersonaBeginner, testBotConfig())
	g.Expect(err).To(HaveOccurred())
	g.Expect(err.Error()).To(ContainSubstring("connection reset"))

	// The droplet existed for a moment; the cleanup destroy removes
	// it before the saga rolls back the rest.
	g.Expect(cloud.created).To(HaveLen(1))
	g.Expect(cloud.destroyed).To(HaveLen(1))
	g.Expect(cloud.droplets).To(BeEmpty())
	g.Expect(backend.bots).To(BeEmpty())
	g.Expect(backend.counts[account.ID]).To(BeZero())
}

func TestSanitizeBotName(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "clean name passes through",
			input:    "Momentum Rider",
			expected: "Momentum Rider",
		},
		{
			name:     "special characters become underscores",
			input:    "prod/bot:alpha!",
			expected: "prod_bot_alpha_",
		},
		{
			name:     "surrounding whitespace is trimmed",
			input:    "  spaced out  ",
			expected: "spaced out",
		},
		{
			name:     "long names are capped at 64 code points",
			input:    strings.Repeat("a", 80),
			expected: strings.Repeat("a", 64),
		},
		{
			name:     "multibyte runes are replaced",
			input:    "bot🚀rocket",
			expected: "bot_rocket",
		},
		{
			name:     "empty stays empty",
			input:    "",
			expected: "",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGomegaWithT(t)
			g.Expect(sanitizeBotName(tc.input)).To(Equal(tc.expected))
		})
	}
}

func TestDropletName(t *testing.T) {
	g := NewGomegaWithT(t)
	id := uuid.MustParse("a1b2c3d4-e5f6-4788-99aa-bbccddeeff00")
	g.Expect(dropletName(id)).To(Equal("openclaw-bot-a1b2c3d4"))
}

func TestGenerateRegistrationToken(t *testing.T) {
	g := NewGomegaWithT(t)

	token, err := generateRegistrationToken()
	g.Expect(err).ToNot(HaveOccurred())

	raw, err := base64.StdEncoding.DecodeString(token)
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(raw).To(HaveLen(32))

	other, err := generateRegistrationToken()
	g.Expect(err).ToNot(HaveOccurred())
	g.Expect(other).ToNot(Equal(token))
}

func TestBuildUserData(t *testing.T) {
	g := NewGomegaWithT(t)

	svc := newTestService(t, newFakeBackend(), newFakeCloud())
	botID := uuid.New()
	data := svc.buildUserData(botID, "tok-123")

	g.Expect(strings.HasPrefix(data, "#!/bin/bash\n")).To(BeTrue())
	g.Expect(data).To(ContainSubstring("set -e\n"))
	g.Expect(data).ToNot(ContainSubstring("set -x"))

	g.Expect(data).To(ContainSubstring("export BOT_ID=\"" + botID.String() + "\""))
	g.Expect(data).To(ContainSubstring("export REGISTRATION_TOKEN=\"tok-123\""))
	g.Expect(data).To(ContainSubstring("export CONTROL_PLANE_URL=\"https://cp.example.test\""))

	g.Expect(data).To(ContainSubstring("export CUSTOMIZER_REPO_URL=\"https://github.com/janebot2026/janebot-cli.git\""))
	g.Expect(data).To(ContainSubstring("export CUSTOMIZER_REF=\"4b170b4aa31f79bda84f7383b3992ca8681d06d3\""))
	g.Expect(data).To(ContainSubstring("export CUSTOMIZER_SKIP_HEARTBEAT=\"true\""))

	g.Expect(data).To(ContainSubstring("export TOOLCHAIN_NODE_MAJOR=\"22\""))
	g.Expect(data).To(ContainSubstring("export TOOLCHAIN_PNPM_VERSION=\"9.15.0\""))
	g.Expect(data).To(ContainSubstring("export TOOLCHAIN_APT_PACKAGES=\"build-essential git curl jq\""))
	g.Expect(data).To(ContainSubstring("export TOOLCHAIN_INSTALL_RUST=\"false\""))

	// The embedded bootstrap follows the exports.
	g.Expect(data).To(ContainSubstring("apt-get update"))
	g.Expect(data).To(ContainSubstring("/bot/register"))
}
