package public

import (
	"github.com/affilia-next/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
)

func getUserID(c *gin.Context) (uint, bool) {
	return shared.GetContextUint(c, "user_id")
}
