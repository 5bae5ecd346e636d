package internal_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"marketplace_ledger/internal/api"
	"marketplace_ledger/internal/domain"
	"marketplace_ledger/internal/ledger"
	"marketplace_ledger/internal/notify"
	"marketplace_ledger/internal/repository/memory"
	"marketplace_ledger/pkg/crypto"
	"marketplace_ledger/pkg/metrics"
)

type testEnv struct {
	engine *ledger.Ledger
	signer *crypto.Signer
	email  *notify.MockEmailSender
	slack  *notify.MockSlackSender
	router http.Handler
}

func setup(t *testing.T) *testEnv {
	t.Helper()

	engine, err := ledger.New(
		memory.NewAccountRepository(),
		memory.NewTransactionRepository(),
		memory.NewEscrowRepository(),
		memory.NewFeeRepository(),
		ledger.Config{FeeRateBasisPoints: 100},
		nil,
	)
	if err != nil {
		t.Fatalf("build engine failed: %v", err)
	}

	signer := crypto.NewSigner("test-secret", nil)
	email := &notify.MockEmailSender{}
	slack := &notify.MockSlackSender{}
	notifier := notify.NewNotifier(email, slack, 2, nil)

	handler := api.NewHandler(engine, metrics.NewCollector(nil), signer, notifier, api.Options{
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
	}, nil)

	return &testEnv{
		engine: engine,
		signer: signer,
		email:  email,
		slack:  slack,
		router: handler.Routes(),
	}
}

func (env *testEnv) do(t *testing.T, method, path, caller string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request failed: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader([]byte(`{}`))
	}

	r := httptest.NewRequest(method, path, reader)
	r.Header.Set("Content-Type", "application/json")
	if caller != "" {
		r.Header.Set("Authorization", "Bearer "+caller)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response failed: %v", err)
	}
	return v
}

func mustMint(t *testing.T, env *testEnv, accountID string, amount int64) {
	t.Helper()

	w := env.do(t, "POST", "/api/v1/accounts/"+accountID+"/mint", "admin", api.AmountRequest{Amount: amount})
	if w.Code != http.StatusCreated {
		t.Fatalf("mint failed with status %d: %s", w.Code, w.Body.String())
	}
}

func mustCreateEscrow(t *testing.T, env *testEnv, depositor string, req api.CreateEscrowRequest) domain.EscrowAgreement {
	t.Helper()

	w := env.do(t, "POST", "/api/v1/escrows", depositor, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create escrow failed with status %d: %s", w.Code, w.Body.String())
	}
	return decode[domain.EscrowAgreement](t, w)
}

func TestIntegration_RequiresBearerToken(t *testing.T) {
	env := setup(t)

	w := env.do(t, "GET", "/api/v1/stats", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
}

func TestIntegration_HealthIsPublic(t *testing.T) {
	env := setup(t)

	w := env.do(t, "GET", "/api/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestIntegration_AccountLifecycle(t *testing.T) {
	env := setup(t)

	w := env.do(t, "POST", "/api/v1/accounts", "admin", api.CreateAccountRequest{ID: "alice"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, "POST", "/api/v1/accounts", "admin", api.CreateAccountRequest{ID: "alice"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d", w.Code)
	}

	mustMint(t, env, "alice", 1500)

	w = env.do(t, "GET", "/api/v1/accounts/alice/balance", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	balance := decode[api.BalanceResponse](t, w)
	if balance.Balance != 1500 {
		t.Fatalf("expected balance 1500, got %d", balance.Balance)
	}

	w = env.do(t, "GET", "/api/v1/accounts/nobody", "alice", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing account, got %d", w.Code)
	}
}

func TestIntegration_TransferFromCaller(t *testing.T) {
	env := setup(t)
	mustMint(t, env, "alice", 1000)

	w := env.do(t, "POST", "/api/v1/transfers", "alice", api.TransferRequest{To: "bob", Amount: 400, Memo: "order 7"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	tx := decode[domain.Transaction](t, w)
	if tx.From != "alice" || tx.To != "bob" {
		t.Fatalf("expected alice -> bob, got %s -> %s", tx.From, tx.To)
	}

	w = env.do(t, "GET", "/api/v1/transactions/"+tx.ID, "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = env.do(t, "POST", "/api/v1/transfers", "alice", api.TransferRequest{To: "bob", Amount: 5000})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for overdraw, got %d", w.Code)
	}
}

func TestIntegration_EscrowHappyPath(t *testing.T) {
	env := setup(t)
	mustMint(t, env, "alice", 10_000)

	agreement := mustCreateEscrow(t, env, "alice", api.CreateEscrowRequest{
		Beneficiary: "bob",
		Amount:      10_000,
		Deadline:    time.Now().Add(48 * time.Hour),
		Description: "marketplace order 42",
	})
	if agreement.PlatformFee != 100 || agreement.NetAmount != 9_900 {
		t.Fatalf("unexpected fee split: fee=%d net=%d", agreement.PlatformFee, agreement.NetAmount)
	}

	w := env.do(t, "POST", "/api/v1/escrows/"+agreement.ID+"/approve/buyer", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("buyer approve failed: %d %s", w.Code, w.Body.String())
	}
	w = env.do(t, "POST", "/api/v1/escrows/"+agreement.ID+"/approve/seller", "bob", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("seller approve failed: %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, "POST", "/api/v1/escrows/"+agreement.ID+"/release", "bob", api.ReleaseRequest{Amount: 9_900})
	if w.Code != http.StatusOK {
		t.Fatalf("release failed: %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, "GET", "/api/v1/escrows/"+agreement.ID, "alice", nil)
	got := decode[domain.EscrowAgreement](t, w)
	if got.Status != domain.EscrowCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}

	w = env.do(t, "GET", "/api/v1/accounts/bob/balance", "bob", nil)
	balance := decode[api.BalanceResponse](t, w)
	if balance.Balance != 9_900 {
		t.Fatalf("expected bob to hold 9900, got %d", balance.Balance)
	}

	w = env.do(t, "GET", "/api/v1/escrows/"+agreement.ID+"/transactions", "alice", nil)
	txs := decode[[]domain.Transaction](t, w)
	if len(txs) != 2 {
		t.Fatalf("expected deposit + release in the log, got %d entries", len(txs))
	}
}

func TestIntegration_DisputeFlow(t *testing.T) {
	env := setup(t)
	mustMint(t, env, "alice", 10_000)

	agreement := mustCreateEscrow(t, env, "alice", api.CreateEscrowRequest{
		Beneficiary: "bob",
		Arbitrator:  "arbiter",
		Amount:      10_000,
		Deadline:    time.Now().Add(48 * time.Hour),
	})

	w := env.do(t, "POST", "/api/v1/escrows/"+agreement.ID+"/dispute", "mallory", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-party, got %d", w.Code)
	}

	w = env.do(t, "POST", "/api/v1/escrows/"+agreement.ID+"/dispute", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("dispute failed: %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, "POST", "/api/v1/escrows/"+agreement.ID+"/resolve", "bob", api.ResolveRequest{FavorBeneficiary: true})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-arbitrator, got %d", w.Code)
	}

	w = env.do(t, "POST", "/api/v1/escrows/"+agreement.ID+"/resolve", "arbiter", api.ResolveRequest{FavorBeneficiary: false})
	if w.Code != http.StatusOK {
		t.Fatalf("resolve failed: %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, "GET", "/api/v1/accounts/alice/balance", "alice", nil)
	balance := decode[api.BalanceResponse](t, w)
	if balance.Balance != 9_900 {
		t.Fatalf("expected depositor refunded net 9900, got %d", balance.Balance)
	}
}

func TestIntegration_CancelBeforeApproval(t *testing.T) {
	env := setup(t)
	mustMint(t, env, "alice", 1_000)

	agreement := mustCreateEscrow(t, env, "alice", api.CreateEscrowRequest{
		Beneficiary: "bob",
		Amount:      1_000,
		Deadline:    time.Now().Add(24 * time.Hour),
	})

	w := env.do(t, "POST", "/api/v1/escrows/"+agreement.ID+"/cancel", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel failed: %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, "POST", "/api/v1/escrows/"+agreement.ID+"/cancel", "alice", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for terminal escrow, got %d", w.Code)
	}
}

func TestIntegration_FeeWithdrawal(t *testing.T) {
	env := setup(t)
	mustMint(t, env, "alice", 10_000)
	mustCreateEscrow(t, env, "alice", api.CreateEscrowRequest{
		Beneficiary: "bob",
		Amount:      10_000,
		Deadline:    time.Now().Add(24 * time.Hour),
	})

	w := env.do(t, "GET", "/api/v1/fees", "admin", nil)
	fees := decode[domain.FeeStats](t, w)
	if fees.TotalFees != 100 {
		t.Fatalf("expected 100 accrued, got %d", fees.TotalFees)
	}

	w = env.do(t, "POST", "/api/v1/fees/withdraw", "admin", api.AmountRequest{Amount: 150})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for over-withdrawal, got %d", w.Code)
	}

	w = env.do(t, "POST", "/api/v1/fees/withdraw", "admin", api.AmountRequest{Amount: 100})
	if w.Code != http.StatusOK {
		t.Fatalf("withdraw failed: %d %s", w.Code, w.Body.String())
	}
}

func TestIntegration_SignatureVerification(t *testing.T) {
	env := setup(t)

	ts := time.Now().Unix()
	valid := env.signer.SignOperation("admin", "mint", 500, ts)

	w := env.do(t, "POST", "/api/v1/accounts/alice/mint", "admin", api.AmountRequest{
		Amount: 500, Timestamp: ts, Signature: valid,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("signed mint failed: %d %s", w.Code, w.Body.String())
	}

	w = env.do(t, "POST", "/api/v1/accounts/alice/mint", "admin", api.AmountRequest{
		Amount: 500, Timestamp: ts, Signature: "deadbeef",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", w.Code)
	}
}

func TestIntegration_DisputeAlertReachesSlack(t *testing.T) {
	env := setup(t)
	mustMint(t, env, "alice", 1_000)

	agreement := mustCreateEscrow(t, env, "alice", api.CreateEscrowRequest{
		Beneficiary: "bob",
		Arbitrator:  "arbiter",
		Amount:      1_000,
		Deadline:    time.Now().Add(24 * time.Hour),
	})

	w := env.do(t, "POST", "/api/v1/escrows/"+agreement.ID+"/dispute", "bob", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("dispute failed: %d %s", w.Code, w.Body.String())
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(env.slack.Sent()) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected a slack alert for the dispute")
}

func TestIntegration_ConcurrentTransfersConserveTotal(t *testing.T) {
	env := setup(t)
	mustMint(t, env, "alice", 1_000)

	n := 20
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			to := "bob"
			if i%2 == 0 {
				to = "carol"
			}
			env.do(t, "POST", "/api/v1/transfers", "alice", api.TransferRequest{
				To: to, Amount: 10, Memo: fmt.Sprintf("concurrent %d", i),
			})
		}(i)
	}
	wg.Wait()

	var total int64
	for _, id := range []string{"alice", "bob", "carol"} {
		w := env.do(t, "GET", "/api/v1/accounts/"+id+"/balance", "admin", nil)
		if w.Code != http.StatusOK {
			continue
		}
		total += decode[api.BalanceResponse](t, w).Balance
	}
	if total != 1_000 {
		t.Fatalf("expected total 1000 after concurrent transfers, got %d", total)
	}

	w := env.do(t, "GET", "/api/v1/stats", "admin", nil)
	stats := decode[ledger.Stats](t, w)
	if stats.TotalBalance != 1_000 {
		t.Fatalf("expected total balance 1000, got %d", stats.TotalBalance)
	}
}
