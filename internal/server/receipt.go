package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	receiptdomain "github.com/smallbiznis/carebill/internal/receipt/domain"
)

func (s *Server) DownloadReceipt(c *gin.Context) {
	caller, ok := callerFrom(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	receipt, err := s.receiptSvc.Render(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", receipt.Filename))
	c.Data(http.StatusOK, receiptdomain.ContentType, receipt.Content)
}
