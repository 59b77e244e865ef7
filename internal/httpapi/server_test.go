package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/amberforum/economy/internal/bots"
	"github.com/amberforum/economy/internal/ranks"
	"github.com/amberforum/economy/internal/store/gormstore"
	"github.com/amberforum/economy/pkg/economy"
)

const (
	testSigningKey = "test-signing-key"
	testIssuer     = "economyd"
)

func TestEconomyAPIEndToEnd(t *testing.T) {
	server := startTestServer(t)
	defer server.Close()

	token := buildAdminToken(t)

	// Earn 50 coins for a user.
	earn := map[string]any{
		"type":            "earn",
		"wallet":          "user-1",
		"amount":          50,
		"trigger":         "forum.reply.posted",
		"idempotency_key": "api-earn-1",
	}
	var earnResponse transactionResponse
	doJSON(t, server, http.MethodPost, "/api/transactions", "", earn, http.StatusOK, &earnResponse)
	if earnResponse.AwardedAmount != 50 {
		t.Fatalf("expected 50 awarded, got %d", earnResponse.AwardedAmount)
	}
	if earnResponse.Replayed {
		t.Fatalf("first execution must not be a replay")
	}

	// Same idempotency key replays the original result.
	var replayResponse transactionResponse
	doJSON(t, server, http.MethodPost, "/api/transactions", "", earn, http.StatusOK, &replayResponse)
	if !replayResponse.Replayed {
		t.Fatalf("expected replayed result")
	}
	if replayResponse.TransactionID != earnResponse.TransactionID {
		t.Fatalf("replay must return the original transaction")
	}

	// Wallet view reflects a single application.
	var wallet struct {
		Owner   string `json:"owner"`
		Balance int64  `json:"balance"`
	}
	doJSON(t, server, http.MethodGet, "/api/wallets/user-1", "", nil, http.StatusOK, &wallet)
	if wallet.Balance != 50 {
		t.Fatalf("expected balance 50, got %d", wallet.Balance)
	}

	// Spend more than the balance is rejected.
	overdraw := map[string]any{
		"type":    "spend",
		"wallet":  "user-1",
		"amount":  500,
		"trigger": "shop.flair.purchase",
	}
	doJSON(t, server, http.MethodPost, "/api/transactions", "", overdraw, http.StatusUnprocessableEntity, nil)

	// Adjustments and overdraft spends are refused without admin credentials.
	adjust := map[string]any{
		"type":      "adjustment",
		"wallet":    "user-1",
		"amount":    5,
		"trigger":   "admin.manual.grant",
		"direction": "credit",
	}
	doJSON(t, server, http.MethodPost, "/api/transactions", "", adjust, http.StatusForbidden, nil)
	overdraft := map[string]any{
		"type":            "spend",
		"wallet":          "user-1",
		"amount":          10,
		"trigger":         "shop.flair.purchase",
		"allow_overdraft": true,
	}
	doJSON(t, server, http.MethodPost, "/api/transactions", "", overdraft, http.StatusForbidden, nil)

	// XP award and progress view.
	award := map[string]any{"user_id": "user-1", "activity": "forum.reply", "amount": 30}
	var xpResult ranks.XpResult
	doJSON(t, server, http.MethodPost, "/api/xp", "", award, http.StatusOK, &xpResult)
	if xpResult.AwardedXP != 30 {
		t.Fatalf("expected 30 xp awarded, got %d", xpResult.AwardedXP)
	}
	var progress ranks.Progress
	doJSON(t, server, http.MethodGet, "/api/xp/user-1", "", nil, http.StatusOK, &progress)
	if progress.CurrentXP != 30 {
		t.Fatalf("expected progress 30, got %d", progress.CurrentXP)
	}

	// Admin routes demand a valid token.
	doJSON(t, server, http.MethodGet, "/admin/treasury", "", nil, http.StatusUnauthorized, nil)

	var treasury economy.Treasury
	doJSON(t, server, http.MethodGet, "/admin/treasury", token, nil, http.StatusOK, &treasury)
	if treasury.Balance != 10000-50 {
		t.Fatalf("expected treasury debited to 9950, got %d", treasury.Balance)
	}

	// Refill grows the balance.
	doJSON(t, server, http.MethodPost, "/admin/treasury/refill", token, map[string]any{"amount": 1000}, http.StatusOK, &treasury)
	if treasury.Balance != 10950 {
		t.Fatalf("expected treasury 10950 after refill, got %d", treasury.Balance)
	}

	// Drain half the user's wallet back to the treasury.
	var drained transactionResponse
	doJSON(t, server, http.MethodPost, "/admin/wallets/user-1/drain", token, map[string]any{"percentage": 50}, http.StatusOK, &drained)
	if drained.AwardedAmount != 25 {
		t.Fatalf("expected 25 drained, got %d", drained.AwardedAmount)
	}

	// The rejected adjustment succeeds on the authenticated admin route.
	var adjusted transactionResponse
	doJSON(t, server, http.MethodPost, "/admin/adjustments", token, adjust, http.StatusOK, &adjusted)
	if adjusted.AwardedAmount != 5 {
		t.Fatalf("expected 5 adjusted, got %d", adjusted.AwardedAmount)
	}

	// Bot registration starts inactive, then toggles on.
	var bot bots.Bot
	createBot := map[string]any{
		"name":          "greeter",
		"purpose":       "referral",
		"trust_level":   80,
		"activity_caps": map[string]int{"referral_bonus": 5},
	}
	doJSON(t, server, http.MethodPost, "/admin/bots", token, createBot, http.StatusOK, &bot)
	if bot.IsActive {
		t.Fatalf("new bot must start inactive")
	}
	var toggled bots.Bot
	doJSON(t, server, http.MethodPost, "/admin/bots/"+bot.BotID+"/toggle", token, map[string]any{"active": true}, http.StatusOK, &toggled)
	if !toggled.IsActive {
		t.Fatalf("expected bot activated")
	}

	// A manual tick over an empty content table reports the bot idle.
	var report bots.TickReport
	doJSON(t, server, http.MethodPost, "/admin/ticks", token, nil, http.StatusOK, &report)
	if report.BotsConsidered != 1 {
		t.Fatalf("expected 1 bot considered, got %+v", report)
	}
}

func TestAdminAuthRejectsWrongRole(t *testing.T) {
	server := startTestServer(t)
	defer server.Close()

	claims := jwt.MapClaims{
		"iss":  testIssuer,
		"sub":  "user-1",
		"role": "member",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSigningKey))
	if err != nil {
		t.Fatalf("token signing failed: %v", err)
	}
	doJSON(t, server, http.MethodGet, "/admin/treasury", signed, nil, http.StatusForbidden, nil)
}

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(t.TempDir()+"/economy.db"), &gorm.Config{})
	if err != nil {
		t.Fatalf("sqlite open failed: %v", err)
	}
	if err := db.AutoMigrate(gormstore.AllModels()...); err != nil {
		t.Fatalf("automigrate failed: %v", err)
	}

	ctx := context.Background()
	store := gormstore.New(db)
	if err := store.EnsureTreasury(ctx, economy.Treasury{
		Balance:         10000,
		DailySpendLimit: 500,
		WalletCapAmount: 100000,
	}); err != nil {
		t.Fatalf("treasury seed failed: %v", err)
	}
	rankStore := gormstore.NewRankStore(db)
	if err := rankStore.SeedTiers(ctx, []ranks.RankTier{
		{TierID: "newcomer", Name: "Newcomer", MinXP: 0, Position: 1},
		{TierID: "regular", Name: "Regular", MinXP: 500, Position: 2},
	}, nil); err != nil {
		t.Fatalf("tier seed failed: %v", err)
	}
	botStore := gormstore.NewBotStore(db)

	clock := func() int64 { return time.Now().UTC().Unix() }
	ledger, err := economy.NewService(store, clock)
	if err != nil {
		t.Fatalf("ledger init failed: %v", err)
	}
	botService, err := bots.NewService(botStore, ledger, clock, zap.NewNop())
	if err != nil {
		t.Fatalf("bot service init failed: %v", err)
	}
	rankService, err := ranks.NewService(rankStore, clock, 1000)
	if err != nil {
		t.Fatalf("rank service init failed: %v", err)
	}

	apiServer, err := NewServer(Config{
		ListenAddr:      ":0",
		AdminSigningKey: testSigningKey,
		AdminIssuer:     testIssuer,
	}, zap.NewNop(), ledger, botService, rankService, store)
	if err != nil {
		t.Fatalf("server init failed: %v", err)
	}
	return httptest.NewServer(apiServer.setupRouter())
}

func buildAdminToken(t *testing.T) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss":  testIssuer,
		"sub":  "admin-1",
		"role": "admin",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSigningKey))
	if err != nil {
		t.Fatalf("token signing failed: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, server *httptest.Server, method, path, token string, payload map[string]any, wantStatus int, out any) {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, server.URL+path, body)
	if err != nil {
		t.Fatalf("request init failed: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("%s %s: expected status %d, got %d", method, path, wantStatus, resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
	}
}
