package public

import (
	"github.com/affilia-next/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
)

func respondError(c *gin.Context, code int, msg string, err error) {
	shared.RespondError(c, code, msg, err)
}

func normalizePagination(page, pageSize int) (int, int) {
	return shared.NormalizePagination(page, pageSize)
}
