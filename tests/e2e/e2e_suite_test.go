// Package e2e exercises a running gatewayd binary from outside the process:
// the WebSocket connect handshake, the init frame, and the SSE relay. It
// expects GATEWAY_E2E_BASE_URL and GATEWAY_E2E_JWT_SECRET to point at an
// already-running instance configured with the matching secret; it does not
// start the server itself.
package e2e

import (
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/GoatGit/semibot-sub006/internal/authjwt"
)

const defaultBaseURL = "http://localhost:18080"

var (
	baseURL   string
	jwtSecret string
)

func TestE2E(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Gateway E2E Suite")
}

var _ = BeforeSuite(func() {
	baseURL = os.Getenv("GATEWAY_E2E_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	jwtSecret = os.Getenv("GATEWAY_E2E_JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "e2e-test-secret"
	}

	Eventually(func() int {
		resp, err := http.Get(baseURL + "/readyz")
		if err != nil {
			return 0
		}
		resp.Body.Close()
		return resp.StatusCode
	}).WithTimeout(60 * time.Second).WithPolling(2 * time.Second).Should(Equal(http.StatusOK))
})

// mintToken signs a token accepted by authjwt.Provider for the given
// identity, mirroring how the platform's token issuer would mint one.
func mintToken(userID, orgID string) string {
	claims := authjwt.Claims{
		UserID: userID,
		OrgID:  orgID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(jwtSecret))
	Expect(err).NotTo(HaveOccurred())
	return signed
}
