package simulate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/skillsync/internal/adapters/http/api"
	"github.com/okian/skillsync/internal/adapters/realtime/hub"
	"github.com/okian/skillsync/internal/adapters/repository"
	service "github.com/okian/skillsync/internal/app"
	"github.com/okian/skillsync/internal/auth"
	"github.com/okian/skillsync/internal/domain/types"
	"github.com/okian/skillsync/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func startServer(secret string) (*httptest.Server, func()) {
	ctx := context.Background()
	authn := auth.New(secret, time.Hour)
	h := hub.New(hub.WithAuthenticator(authn))
	svc := service.New(repository.NewMemoryStore(), service.WithWorkerCount(2), service.WithPublisher(h))
	So(svc.Start(ctx), ShouldBeNil)
	mux := http.NewServeMux()
	api.NewServer(svc, authn, h).Register(ctx, mux)
	srv := httptest.NewServer(mux)
	return srv, func() {
		srv.Close()
		svc.Stop()
	}
}

func TestRun(t *testing.T) {
	Convey("Given a server without a jwt secret", t, func() {
		srv, stop := startServer("")
		defer stop()

		Convey("A simulation with four clients verifies exact fan-out", func() {
			stats, err := Run(context.Background(), Config{BaseURL: srv.URL, Clients: 4, Messages: 2, Project: "p-sim"})
			So(err, ShouldBeNil)
			So(stats.MessagesSent, ShouldEqual, 8)
			So(stats.MessagesReceived, ShouldEqual, 4*3*2)
			So(stats.Moves, ShouldEqual, 8)
			So(stats.TaskUpdates, ShouldEqual, 4*(4+8+6))
		})
	})

	Convey("Given a server with a jwt secret", t, func() {
		srv, stop := startServer("sim-secret")
		defer stop()

		Convey("Clients authenticate with minted tokens", func() {
			_, err := Run(context.Background(), Config{BaseURL: srv.URL, Clients: 2, Messages: 1, JWTSecret: "sim-secret"})
			So(err, ShouldBeNil)
		})

		Convey("A wrong secret is refused at the socket", func() {
			_, err := Run(context.Background(), Config{BaseURL: srv.URL, Clients: 2, Messages: 1, JWTSecret: "other", Timeout: time.Second})
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Config validation", t, func() {
		_, err := Run(context.Background(), Config{BaseURL: "http://127.0.0.1:1", Clients: 1})
		So(err, ShouldNotBeNil)

		cfg := Config{BaseURL: "https://example.com/"}
		cfg.setDefaults()
		So(cfg.wsURL(), ShouldEqual, "wss://example.com/ws")
		So(cfg.Clients, ShouldEqual, DefaultClients)
	})

	Convey("Leaderboard ordering", t, func() {
		So(verifyLeaderboardSorted([]types.LeaderboardEntry{{Rank: 1, Score: 90}, {Rank: 2, Score: 70}}), ShouldBeNil)
		So(verifyLeaderboardSorted([]types.LeaderboardEntry{{Rank: 1, Score: 60}, {Rank: 2, Score: 70}}), ShouldNotBeNil)
		So(verifyLeaderboardSorted(nil), ShouldNotBeNil)
	})
}
