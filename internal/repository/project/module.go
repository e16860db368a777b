package project

import "go.uber.org/fx"

// Module provides the project repository to Fx.
var Module = fx.Provide(NewRepository)
