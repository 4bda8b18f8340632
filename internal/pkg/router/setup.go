package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/cuidarte/crm/app/controllers"
)

// Router registers a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

func InstallRouter(app *fiber.App, api *controllers.APIController) {
	setup(app, NewApiRouter(api))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
