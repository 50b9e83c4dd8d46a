package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/skillsync/pkg/logger"
)

func TestRouteInstrumentation(t *testing.T) {
	Convey("Endpoint labels come from route templates", t, func() {
		So(endpointLabel("GET /users/{id}/score"), ShouldEqual, "/users/{id}/score")
		So(endpointLabel("/plain"), ShouldEqual, "/plain")
	})

	Convey("Error types cover the mapped statuses", t, func() {
		So(errorType(http.StatusTooManyRequests), ShouldEqual, "backpressure")
		So(errorType(http.StatusConflict), ShouldEqual, "conflict")
		So(errorType(http.StatusTeapot), ShouldEqual, "client_error")
		So(errorType(http.StatusBadGateway), ShouldEqual, "server_error")
	})

	Convey("Given a routed handler that writes a status twice", t, func() {
		mux := http.NewServeMux()
		route(mux, logger.Get(), "GET /things/{id}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			w.WriteHeader(http.StatusOK)
		})

		Convey("Then the first status is the one served", func() {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/things/42", nil))
			So(w.Code, ShouldEqual, http.StatusConflict)
		})
	})
}
