package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware_LabelsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/api/products/:id", func(c *gin.Context) { c.Status(http.StatusTeapot) })

	before := testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/api/products/:id", "418"))
	for _, id := range []string{"a", "b"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/products/"+id, nil))
	}
	after := testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/api/products/:id", "418"))
	assert.Equal(t, before+2, after)
}

func TestRecordCheckout(t *testing.T) {
	before := testutil.ToFloat64(checkouts.WithLabelValues(OutcomePlaced))
	RecordCheckout(OutcomePlaced)
	assert.Equal(t, before+1, testutil.ToFloat64(checkouts.WithLabelValues(OutcomePlaced)))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	RecordCartRetry()
	w := httptest.NewRecorder()
	Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "storefront_cart_write_retries_total"))
}
