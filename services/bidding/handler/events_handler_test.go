package handler

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"auction-house/internal/biddingerrors"
	model "auction-house/internal/models"
	"auction-house/internal/notify"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// readEvent reads one SSE frame and returns its event name and data
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if name != "" || data != "" {
				return name, data
			}
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimPrefix(line, "event:")
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimPrefix(line, "data:")
		}
	}
}

func openStream(t *testing.T, router *gin.Engine, path string) (*bufio.Reader, context.CancelFunc) {
	t.Helper()
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+path, nil)
	require.NoError(t, err)

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body), cancel
}

func TestAuctionEventsHandler_StreamsAndUnsubscribes(t *testing.T) {
	ctrl := gomock.NewController(t)
	auctions := NewMockAuctionServiceInterface(ctrl)
	auctions.EXPECT().Get(gomock.Any(), "auction1").Return(sampleAuction(), nil)

	hub := notify.NewHub()
	router := gin.New()
	router.GET("/auctions/:id/events", NewEventsHandler(hub, auctions, time.Hour).AuctionEventsHandler)

	stream, cancel := openStream(t, router, "/auctions/auction1/events")
	channel := notify.AuctionChannel("auction1")
	require.Eventually(t, func() bool { return hub.Subscribers(channel) == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(channel, model.Event{
		Type:            model.EventNewBid,
		AuctionID:       "auction1",
		CurrentPrice:    decimal.RequireFromString("125.50"),
		HighestBidderID: "user2",
		At:              time.Now(),
	})

	name, data := readEvent(t, stream)
	require.Equal(t, "newBid", name)
	require.Contains(t, data, `"auction_id":"auction1"`)
	require.Contains(t, data, `"highest_bidder_id":"user2"`)

	cancel()
	require.Eventually(t, func() bool { return hub.Subscribers(channel) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestAuctionEventsHandler_UnknownAuction(t *testing.T) {
	ctrl := gomock.NewController(t)
	auctions := NewMockAuctionServiceInterface(ctrl)
	auctions.EXPECT().Get(gomock.Any(), "missing").
		Return(model.Auction{}, fmt.Errorf("get auction missing: %w", biddingerrors.ErrNotFound))

	hub := notify.NewHub()
	router := gin.New()
	router.GET("/auctions/:id/events", NewEventsHandler(hub, auctions, time.Hour).AuctionEventsHandler)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auctions/missing/events", nil))

	require.Equal(t, http.StatusNotFound, w.Code)
	require.Zero(t, hub.Subscribers(notify.AuctionChannel("missing")))
}

func TestUserEventsHandler_OnlyOwnChannel(t *testing.T) {
	ctrl := gomock.NewController(t)
	hub := notify.NewHub()
	router := gin.New()
	router.GET("/users/me/events", withUser("user1", model.RoleBidder),
		NewEventsHandler(hub, NewMockAuctionServiceInterface(ctrl), time.Hour).UserEventsHandler)

	stream, cancel := openStream(t, router, "/users/me/events")
	defer cancel()
	require.Eventually(t, func() bool { return hub.Subscribers(notify.UserChannel("user1")) == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(notify.UserChannel("user2"), model.Event{Type: model.EventAuctionEnded, AuctionID: "other"})
	hub.Publish(notify.UserChannel("user1"), model.Event{
		Type:      model.EventAuctionEnded,
		AuctionID: "auction1",
		Message:   "You won the auction",
	})

	name, data := readEvent(t, stream)
	require.Equal(t, "auctionEnded", name)
	require.Contains(t, data, `"auction_id":"auction1"`)
	require.Contains(t, data, "You won the auction")
}

func TestEventsHandler_KeepAlivePing(t *testing.T) {
	ctrl := gomock.NewController(t)
	hub := notify.NewHub()
	router := gin.New()
	router.GET("/users/me/events", withUser("user1", model.RoleBidder),
		NewEventsHandler(hub, NewMockAuctionServiceInterface(ctrl), 20*time.Millisecond).UserEventsHandler)

	stream, cancel := openStream(t, router, "/users/me/events")
	defer cancel()

	line, err := stream.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": ping\n", line)
}
