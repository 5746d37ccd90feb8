package encounter

import (
	"github.com/smallbiznis/carebill/internal/encounter/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("encounter.repository",
	fx.Provide(repository.Provide),
)
