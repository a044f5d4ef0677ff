package tool

import (
	"context"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"
)

type kycInput struct {
	PhoneNumber string `json:"phone_number" validate:"required,min=6,max=20"`
}

type KYCOutput struct {
	PhoneNumber      string   `json:"phone_number"`
	Verified         bool     `json:"verified"`
	Level            string   `json:"level,omitempty"`
	MissingDocuments []string `json:"missing_documents"`
	Message          string   `json:"message,omitempty"`
	Degraded         bool     `json:"degraded,omitempty"`
}

func newKYCStatusTool(directory KYCDirectory) *typedTool[kycInput, KYCOutput] {
	info := &schema.ToolInfo{
		Name: ToolKYCStatus,
		Desc: "Vérifie le statut KYC (identité) d'un client à partir de son numéro de téléphone et liste les documents manquants.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"phone_number": {Type: schema.String, Desc: "Numéro de téléphone du client", Required: true},
		}),
	}
	return newTypedTool(info, func(ctx context.Context, in kycInput) KYCOutput {
		rec, err := directory.LookupKYC(ctx, in.PhoneNumber)
		if err != nil {
			log.Warn().Err(err).Str("tool", ToolKYCStatus).Msg("kyc lookup failed")
			return KYCOutput{
				PhoneNumber:      in.PhoneNumber,
				Verified:         false,
				MissingDocuments: []string{},
				Message:          "Le service KYC est momentanément indisponible. Le statut n'a pas pu être vérifié.",
				Degraded:         true,
			}
		}
		missing := rec.MissingDocuments
		if missing == nil {
			missing = []string{}
		}
		out := KYCOutput{
			PhoneNumber:      in.PhoneNumber,
			Verified:         rec.Verified,
			Level:            rec.Level,
			MissingDocuments: missing,
		}
		if !rec.Verified && len(missing) == 0 {
			out.Message = "Compte non vérifié."
		}
		return out
	})
}
