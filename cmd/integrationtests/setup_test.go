package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	auction "auction-house/internal/auctionService"
	auth "auction-house/internal/authService"
	bidding "auction-house/internal/biddingService"
	"auction-house/internal/clock"
	"auction-house/internal/crypto"
	"auction-house/internal/imagestore"
	model "auction-house/internal/models"
	"auction-house/internal/notify"
	"auction-house/internal/repository"
	"auction-house/internal/repository/storetest"
	"auction-house/internal/server"
	"auction-house/internal/sweeper"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const jwtSecret = "integration-secret"

// TestApp is the full HTTP stack over the in-memory store
type TestApp struct {
	Router    *gin.Engine
	Repo      *repository.MemoryRepo
	Clock     *clock.Manual
	Hub       *notify.Hub
	Sweeper   *sweeper.Sweeper
	UploadDir string
}

// SetupTestApp initializes the router with in-memory repository for integration testing.
func SetupTestApp(t *testing.T) *TestApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := repository.NewMemoryRepo()
	clk := clock.NewManual(storetest.Base)
	hub := notify.NewHub()
	uploadDir := t.TempDir()
	images, err := imagestore.NewDisk(uploadDir, "http://localhost:8080/uploads")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	router := server.SetupRouter(ctx, server.Services{
		Bidding:  bidding.NewBiddingService(repo, repo, hub, clk),
		Auctions: auction.NewAuctionService(repo, images, hub, clk),
		Auth:     auth.NewAuthService(repo, clk, jwtSecret, time.Hour),
		Events:   hub,
	}, server.Options{UploadDir: uploadDir})

	return &TestApp{
		Router:    router,
		Repo:      repo,
		Clock:     clk,
		Hub:       hub,
		Sweeper:   sweeper.New(repo, hub, clk, time.Minute),
		UploadDir: uploadDir,
	}
}

// CreateUser stores a user directly and returns a bearer token for it
func (a *TestApp) CreateUser(t *testing.T, id string, role model.Role) string {
	t.Helper()
	now := a.Clock.Now()
	require.NoError(t, a.Repo.CreateUser(context.Background(), model.User{
		ID:           id,
		Name:         id,
		Email:        id + "@example.com",
		PasswordHash: "unused",
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}))
	token, err := crypto.GenerateToken(id, role, jwtSecret, time.Hour)
	require.NoError(t, err)
	return token
}

// CreateAuction stores an auction owned by sellerID running from start to end
func (a *TestApp) CreateAuction(t *testing.T, sellerID string, startingPrice int64, start, end time.Time) model.Auction {
	t.Helper()
	auc := storetest.NewAuction(sellerID, startingPrice, start, end, clock.ResolveStatus(start, end, a.Clock.Now()))
	require.NoError(t, a.Repo.CreateAuction(context.Background(), auc))
	return auc
}

// ExecuteRequest executes an HTTP request and returns the response recorder.
func ExecuteRequest(t *testing.T, router *gin.Engine, method, url, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, url, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ExecuteRequestAndParse executes an HTTP request and returns the envelope's data
func ExecuteRequestAndParse(t *testing.T, router *gin.Engine, method, url, token string, body any) (any, *httptest.ResponseRecorder) {
	t.Helper()
	var reqBody []byte
	switch v := body.(type) {
	case nil:
	case []byte:
		reqBody = v
	case string:
		reqBody = []byte(v)
	default:
		var err error
		reqBody, err = json.Marshal(v)
		require.NoError(t, err, "failed to marshal body")
	}

	w := ExecuteRequest(t, router, method, url, token, reqBody)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "failed to unmarshal response")
	return resp["data"], w
}
