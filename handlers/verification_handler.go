package handlers

import (
	"net/http"

	"github.com/NomadCrew/dojo-portal/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// VerificationHandler issues and checks email verification codes.
type VerificationHandler struct {
	verifier CodeVerifier
	log      *zap.SugaredLogger
}

func NewVerificationHandler(verifier CodeVerifier) *VerificationHandler {
	return &VerificationHandler{
		verifier: verifier,
		log:      logger.GetLogger().Named("verification_handler"),
	}
}

type issueCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type verifyCodeRequest struct {
	Email string `json:"email" binding:"required,email"`
	Code  string `json:"code" binding:"required"`
}

// IssueCode sends a fresh code to the address in the body.
func (h *VerificationHandler) IssueCode(c *gin.Context) {
	var req issueCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	issued, err := h.verifier.Issue(c.Request.Context(), req.Email)
	if err != nil {
		_ = c.Error(err)
		return
	}

	h.log.Infow("Verification code issued", "email", logger.MaskEmail(issued.Email))
	c.JSON(http.StatusAccepted, issued)
}

// VerifyCode consumes a matching code.
func (h *VerificationHandler) VerifyCode(c *gin.Context) {
	var req verifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(err).SetType(gin.ErrorTypeBind)
		return
	}

	if err := h.verifier.Verify(c.Request.Context(), req.Email, req.Code); err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"verified": true})
}
