package security_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"Tradelink/internal/api/config"
	"Tradelink/internal/model"
	"Tradelink/internal/pkg/security"
)

var _ = Describe("JWT", func() {
	BeforeEach(func() {
		config.Cfg = &config.Config{JWT: config.JWTConfig{Secret: "test-secret", Issuer: "tradelink", ExpirationHours: 1}}
	})

	who := &model.Identity{ID: "c1", DisplayName: "Alice", Email: "alice@acme.test", Role: model.RoleCustomer}

	It("round trips the identity", func() {
		token, err := security.GenerateToken(who)
		Expect(err).NotTo(HaveOccurred())

		claims, err := security.ValidateToken(token)
		Expect(err).NotTo(HaveOccurred())
		Expect(claims.Identity()).To(Equal(who))
	})

	It("refuses to sign incomplete identities", func() {
		_, err := security.GenerateToken(&model.Identity{ID: "x", Role: model.Role("guest")})
		Expect(err).To(HaveOccurred())
		_, err = security.GenerateToken(nil)
		Expect(err).To(HaveOccurred())
	})

	It("rejects tokens signed with another secret", func() {
		token, err := security.GenerateToken(who)
		Expect(err).NotTo(HaveOccurred())

		config.Cfg.JWT.Secret = "rotated"
		_, err = security.ValidateToken(token)
		Expect(err).To(HaveOccurred())
	})

	It("rejects tokens from another issuer", func() {
		token, err := security.GenerateToken(who)
		Expect(err).NotTo(HaveOccurred())

		config.Cfg.JWT.Issuer = "elsewhere"
		_, err = security.ValidateToken(token)
		Expect(err).To(HaveOccurred())
	})

	It("extracts the signature segment", func() {
		token, err := security.GenerateToken(who)
		Expect(err).NotTo(HaveOccurred())

		sig, err := security.ExtractSignature(token)
		Expect(err).NotTo(HaveOccurred())
		Expect(token).To(HaveSuffix("." + sig))

		_, err = security.ExtractSignature(strings.Repeat("a", 10))
		Expect(err).To(HaveOccurred())
	})
})
