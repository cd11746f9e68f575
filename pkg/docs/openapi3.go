package docs

import (
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/lamassuiot/providore/pkg/config"
)

func NewOpenAPI3(cfg config.Config) openapi3.T {

	contentOf := func(mediaType string, schema *openapi3.Schema) openapi3.Content {
		return openapi3.Content{mediaType: openapi3.NewMediaType().WithSchema(schema)}
	}
	ref := func(name string) *openapi3.ResponseRef {
		return &openapi3.ResponseRef{Ref: "#/components/responses/" + name}
	}
	hmac := &openapi3.SecurityRequirements{{"hmac": []string{}}}
	errorResponses := func(responses openapi3.Responses, codes ...string) openapi3.Responses {
		for _, code := range codes {
			responses[code] = ref("ErrorResponse")
		}
		return responses
	}

	server := "/"
	if cfg.Port != 0 {
		scheme := "http"
		if cfg.HTTPS() {
			scheme = "https"
		}
		server = scheme + "://" + cfg.Address()
	}

	openapiSpec := openapi3.T{
		OpenAPI: "3.0.0",
		Info: &openapi3.Info{
			Title:       "Providore API",
			Description: "REST API used by devices to fetch configuration, firmware and client certificates. Device requests are signed with HMAC-SHA256 and every device payload is signed back with the created-at, expiry and signature headers.",
			Version:     "0.0.1",
			License: &openapi3.License{
				Name: "MPL v2.0",
				URL:  "https://github.com/lamassuiot/lamassu-compose/blob/main/LICENSE",
			},
			Contact: &openapi3.Contact{
				URL: "https://github.com/lamassuiot",
			},
		},
		Servers: openapi3.Servers{
			&openapi3.Server{
				Description: "Current Server",
				URL:         server,
			},
		},
	}

	openapiSpec.Components.SecuritySchemes = openapi3.SecuritySchemes{
		"hmac": &openapi3.SecuritySchemeRef{
			Value: &openapi3.SecurityScheme{
				Type:        "apiKey",
				In:          "header",
				Name:        "Authorization",
				Description: `Hmac key-id="<device id>", signature="<base64 HMAC-SHA256>" over "method\npath[\nx-firmware-version]\ncreated-at\nexpiry". The created-at and expiry headers are required.`,
			},
		},
	}

	openapiSpec.Components.Responses = openapi3.Responses{
		"ErrorResponse": &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("Response when errors happen. Only the status text is returned.").
				WithContent(contentOf("text/plain", openapi3.NewStringSchema())),
		},
		"HealthResponse": &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("Response returned back after healthchecking.").
				WithContent(openapi3.NewContentWithJSONSchema(openapi3.NewSchema().
					WithProperty("healthy", openapi3.NewBoolSchema())),
				),
		},
		"ConfigResponse": &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("Signed device configuration.").
				WithContent(openapi3.NewContentWithJSONSchema(openapi3.NewObjectSchema())),
		},
		"FirmwareResponse": &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("Signed firmware image.").
				WithContent(contentOf("application/octet-stream", openapi3.NewBytesSchema())),
		},
		"CertificateResponse": &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("Signed PEM encoded client certificate.").
				WithContent(contentOf("application/x-pem-file", openapi3.NewStringSchema())),
		},
		"CRLResponse": &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("PEM encoded certificate revocation list.").
				WithContent(contentOf("application/x-pem-file", openapi3.NewStringSchema())),
		},
		"UpdateResponse": &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("Redirect to the firmware image of the next version."),
		},
		"NoUpdateResponse": &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("The running firmware is the latest one."),
		},
	}

	openapiSpec.Components.RequestBodies = openapi3.RequestBodies{
		"postCSRRequest": &openapi3.RequestBodyRef{
			Value: openapi3.NewRequestBody().
				WithDescription("PEM encoded CSR whose common name is the device id").
				WithRequired(true).
				WithContent(contentOf("application/x-pem-file", openapi3.NewStringSchema())),
		},
	}

	versionHeader := &openapi3.ParameterRef{
		Value: openapi3.NewHeaderParameter("x-firmware-version").
			WithDescription("Firmware version running on the device, part of the signed message").
			WithSchema(openapi3.NewStringSchema()),
	}

	openapiSpec.Paths = openapi3.Paths{
		"/health": &openapi3.PathItem{
			Get: &openapi3.Operation{
				OperationID: "Health",
				Description: "Get health status",
				Responses: openapi3.Responses{
					"200": ref("HealthResponse"),
				},
			},
		},
		"/config.json": &openapi3.PathItem{
			Get: &openapi3.Operation{
				OperationID: "GetConfig",
				Description: "Get the device configuration for its firmware version, the newest one when no version is sent",
				Security:    hmac,
				Parameters:  openapi3.Parameters{versionHeader},
				Responses:   errorResponses(openapi3.Responses{"200": ref("ConfigResponse")}, "400", "401", "404", "500"),
			},
		},
		"/firmware.bin": &openapi3.PathItem{
			Get: &openapi3.Operation{
				OperationID: "GetFirmware",
				Description: "Get a firmware image, the newest one when no version is requested",
				Security:    hmac,
				Parameters: openapi3.Parameters{
					{
						Value: openapi3.NewQueryParameter("version").
							WithSchema(openapi3.NewStringSchema()),
					},
				},
				Responses: errorResponses(openapi3.Responses{"200": ref("FirmwareResponse")}, "400", "401", "404", "500"),
			},
		},
		"/firmware/update": &openapi3.PathItem{
			Get: &openapi3.Operation{
				OperationID: "CheckUpdate",
				Description: "Check whether a newer firmware exists for the running version",
				Security:    hmac,
				Parameters:  openapi3.Parameters{versionHeader},
				Responses: errorResponses(openapi3.Responses{
					"302": ref("UpdateResponse"),
					"204": ref("NoUpdateResponse"),
				}, "400", "401", "404", "500"),
			},
		},
		"/client.cert.pem": &openapi3.PathItem{
			Get: &openapi3.Operation{
				OperationID: "GetCertificate",
				Description: "Get the current client certificate of the device",
				Security:    hmac,
				Responses:   errorResponses(openapi3.Responses{"200": ref("CertificateResponse")}, "400", "401", "404", "500"),
			},
		},
		"/certificates/request": &openapi3.PathItem{
			Post: &openapi3.Operation{
				OperationID: "RequestCertificate",
				Description: "Issue a new client certificate. Every previous valid certificate of the device is revoked first",
				Security:    hmac,
				RequestBody: &openapi3.RequestBodyRef{
					Ref: "#/components/requestBodies/postCSRRequest",
				},
				Responses: errorResponses(openapi3.Responses{"200": ref("CertificateResponse")}, "400", "401", "404", "429", "500"),
			},
		},
		"/crl.pem": &openapi3.PathItem{
			Get: &openapi3.Operation{
				OperationID: "GetCRL",
				Description: "Get the certificate revocation list",
				Responses:   errorResponses(openapi3.Responses{"200": ref("CRLResponse")}, "404", "500"),
			},
		},
	}

	return openapiSpec
}
