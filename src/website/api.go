package website

import (
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/AldoManuel/juchifood/src/auth"
	"github.com/AldoManuel/juchifood/src/config"
	"github.com/AldoManuel/juchifood/src/marketdata"
	"github.com/AldoManuel/juchifood/src/models"
)

type sessionResponse struct {
	Vendor *models.Vendor `json:"vendor"`
	Token  string         `json:"token"`
}

func respondWithSession(c *RequestContext, status int, v *models.Vendor) ResponseData {
	token, err := auth.NewVendorToken(v.ID)
	if err != nil {
		return c.ErrorResponse(http.StatusInternalServerError, err)
	}
	return c.JsonResponse(status, sessionResponse{Vendor: v, Token: token})
}

func Health(c *RequestContext) ResponseData {
	return c.JsonResponse(http.StatusOK, map[string]string{"status": "ok"})
}

func Register(c *RequestContext) ResponseData {
	var in marketdata.RegisterInput
	if err := c.ReadJson(&in); err != nil {
		return c.APIError(err)
	}

	v, err := c.Editor.RegisterVendor(c, in)
	if err != nil {
		return c.APIError(err)
	}
	return respondWithSession(c, http.StatusCreated, v)
}

func Login(c *RequestContext) ResponseData {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ReadJson(&in); err != nil {
		return c.APIError(err)
	}

	v, err := c.Editor.Login(c, in.Email, in.Password)
	if err != nil {
		return c.APIError(err)
	}
	return respondWithSession(c, http.StatusOK, v)
}

func Locations(c *RequestContext) ResponseData {
	return c.JsonResponse(http.StatusOK, map[string][]string{"locations": config.Config.Locations})
}

// An empty location means every location. Unknown ones are a client error
// rather than an empty list.
func locationParam(c *RequestContext) (string, error) {
	location := strings.TrimSpace(c.Req.URL.Query().Get("location"))
	if location != "" && !config.Config.IsValidLocation(location) {
		return "", &marketdata.InputError{Field: "location", Message: "Unknown campus location."}
	}
	return location, nil
}

func ListVendors(c *RequestContext) ResponseData {
	location, err := locationParam(c)
	if err != nil {
		return c.APIError(err)
	}

	vendors, err := c.Editor.ListVendors(c, location)
	if err != nil {
		return c.APIError(err)
	}
	if vendors == nil {
		vendors = []*models.Vendor{}
	}
	return c.JsonResponse(http.StatusOK, map[string]any{"vendors": vendors})
}

func GetVendor(c *RequestContext) ResponseData {
	id, ok := c.PathUUID("vendorid")
	if !ok {
		return FourOhFour(c)
	}

	v, err := c.Editor.GetVendor(c, id)
	if err != nil {
		return c.APIError(err)
	}
	return c.JsonResponse(http.StatusOK, v)
}

func ListVendorProducts(c *RequestContext) ResponseData {
	id, ok := c.PathUUID("vendorid")
	if !ok {
		return FourOhFour(c)
	}

	if _, err := c.Editor.GetVendor(c, id); err != nil {
		return c.APIError(err)
	}
	products, err := c.Editor.ListVendorProducts(c, id)
	if err != nil {
		return c.APIError(err)
	}
	if products == nil {
		products = []*models.Product{}
	}
	return c.JsonResponse(http.StatusOK, map[string]any{"products": products})
}

func ListProducts(c *RequestContext) ResponseData {
	location, err := locationParam(c)
	if err != nil {
		return c.APIError(err)
	}

	products, err := c.Editor.ListProducts(c, location)
	if err != nil {
		return c.APIError(err)
	}
	if products == nil {
		products = []*models.ProductAndVendor{}
	}
	return c.JsonResponse(http.StatusOK, map[string]any{"products": products})
}

func Me(c *RequestContext) ResponseData {
	v, err := c.Editor.GetVendor(c, *c.CurrentVendorID)
	if err != nil {
		return c.APIError(err)
	}
	return c.JsonResponse(http.StatusOK, v)
}

func UpdateMe(c *RequestContext) ResponseData {
	var upd models.VendorUpdate
	if err := c.ReadJson(&upd); err != nil {
		return c.APIError(err)
	}

	v, err := c.Editor.UpdateProfile(c, *c.CurrentVendorID, upd)
	if err != nil {
		return c.APIError(err)
	}
	return c.JsonResponse(http.StatusOK, v)
}

func DeleteMe(c *RequestContext) ResponseData {
	if err := c.Editor.DeleteVendor(c, *c.CurrentVendorID); err != nil {
		return c.APIError(err)
	}
	return ResponseData{StatusCode: http.StatusNoContent}
}

func SetMyImage(c *RequestContext) ResponseData {
	file, err := requireFormImage(c)
	if err != nil {
		return c.APIError(err)
	}

	v, err := c.Editor.SetVendorImage(c, *c.CurrentVendorID, file)
	if err != nil {
		return c.APIError(err)
	}
	return c.JsonResponse(http.StatusOK, v)
}

func RemoveMyImage(c *RequestContext) ResponseData {
	v, err := c.Editor.RemoveVendorImage(c, *c.CurrentVendorID)
	if err != nil {
		return c.APIError(err)
	}
	return c.JsonResponse(http.StatusOK, v)
}

// Accepts either a JSON body, or a multipart form with the product fields and
// an optional image.
func CreateProduct(c *RequestContext) ResponseData {
	var in marketdata.ProductInput
	var file *models.ImageAsset

	if isMultipart(c.Req) {
		var err error
		file, err = readFormImage(c)
		if err != nil {
			return c.APIError(err)
		}

		in.Name = c.Req.FormValue("name")
		in.Description = c.Req.FormValue("description")
		in.Price, err = strconv.ParseFloat(strings.TrimSpace(c.Req.FormValue("price")), 64)
		if err != nil {
			return c.APIError(&marketdata.InputError{Field: "price", Message: "Please enter a valid price."})
		}
	} else if err := c.ReadJson(&in); err != nil {
		return c.APIError(err)
	}

	p, err := c.Editor.CreateProduct(c, *c.CurrentVendorID, in, file)
	if err != nil {
		return c.APIError(err)
	}
	return c.JsonResponse(http.StatusCreated, p)
}

func UpdateProduct(c *RequestContext) ResponseData {
	productID, ok := c.PathUUID("productid")
	if !ok {
		return FourOhFour(c)
	}

	var upd models.ProductUpdate
	if err := c.ReadJson(&upd); err != nil {
		return c.APIError(err)
	}

	p, err := c.Editor.UpdateProduct(c, *c.CurrentVendorID, productID, upd)
	if err != nil {
		return c.APIError(err)
	}
	return c.JsonResponse(http.StatusOK, p)
}

func DeleteProduct(c *RequestContext) ResponseData {
	productID, ok := c.PathUUID("productid")
	if !ok {
		return FourOhFour(c)
	}

	if err := c.Editor.DeleteProduct(c, *c.CurrentVendorID, productID); err != nil {
		return c.APIError(err)
	}
	return ResponseData{StatusCode: http.StatusNoContent}
}

func SetProductImage(c *RequestContext) ResponseData {
	productID, ok := c.PathUUID("productid")
	if !ok {
		return FourOhFour(c)
	}

	file, err := requireFormImage(c)
	if err != nil {
		return c.APIError(err)
	}

	p, err := c.Editor.SetProductImage(c, *c.CurrentVendorID, productID, file)
	if err != nil {
		return c.APIError(err)
	}
	return c.JsonResponse(http.StatusOK, p)
}

func isMultipart(req *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}
