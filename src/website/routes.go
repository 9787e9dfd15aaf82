package website

import (
	"net/http"
	"regexp"

	"github.com/AldoManuel/juchifood/src/marketdata"
)

const uuidPattern = `[0-9a-fA-F-]{36}`

func NewWebsiteRoutes(editor *marketdata.Editor) http.Handler {
	router := &Router{}
	routes := RouteBuilder{
		Router: router,
		Middlewares: []Middleware{
			requestLoggerMiddleware,
			trackRequestPerf,
			logContextErrorsMiddleware,
			panicCatcherMiddleware,
			injectEditor(editor),
		},
	}

	routes.GET(regexp.MustCompile(`^/health$`), Health)

	api := routes.Group(regexp.MustCompile(`^/api`), bearerTokenMiddleware)
	api.POST(regexp.MustCompile(`^/register$`), Register)
	api.POST(regexp.MustCompile(`^/login$`), Login)
	api.GET(regexp.MustCompile(`^/locations$`), Locations)

	api.GET(regexp.MustCompile(`^/vendors$`), ListVendors)
	api.GET(regexp.MustCompile(`^/vendors/(?P<vendorid>`+uuidPattern+`)$`), GetVendor)
	api.GET(regexp.MustCompile(`^/vendors/(?P<vendorid>`+uuidPattern+`)/products$`), ListVendorProducts)
	api.GET(regexp.MustCompile(`^/products$`), ListProducts)

	me := api.Group(regexp.MustCompile(`^/me`), needsAuth)
	me.GET(regexp.MustCompile(`^/$`), Me)
	me.POST(regexp.MustCompile(`^/$`), UpdateMe)
	me.DELETE(regexp.MustCompile(`^/$`), DeleteMe)
	me.POST(regexp.MustCompile(`^/image$`), SetMyImage)
	me.DELETE(regexp.MustCompile(`^/image$`), RemoveMyImage)
	me.POST(regexp.MustCompile(`^/products$`), CreateProduct)
	me.POST(regexp.MustCompile(`^/products/(?P<productid>`+uuidPattern+`)$`), UpdateProduct)
	me.DELETE(regexp.MustCompile(`^/products/(?P<productid>`+uuidPattern+`)$`), DeleteProduct)
	me.POST(regexp.MustCompile(`^/products/(?P<productid>`+uuidPattern+`)/image$`), SetProductImage)

	routes.AnyMethod(regexp.MustCompile("^"), FourOhFour)

	return router
}
