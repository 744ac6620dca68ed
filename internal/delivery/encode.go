package delivery

import (
	"bytes"
	"encoding/json"
	"io"
	"net/url"
	"strings"

	"github.com/solatis/stagedoor/internal/types"
)

// notProvided substitutes empty optional fields for providers that do not
// tolerate empty strings.
const notProvided = "Not provided"

// JSONEncoder renders the payload the stagedoor relay endpoint accepts:
// {name, email, website, ideas, howDidYouHear}. Empty optional fields are
// preserved as empty strings; the relay applies its own placeholders.
type JSONEncoder struct{}

// Encode implements Encoder.
func (JSONEncoder) Encode(req types.DeliveryRequest) (io.Reader, string, error) {
	payload := struct {
		Name          string `json:"name"`
		Email         string `json:"email"`
		Website       string `json:"website"`
		Ideas         string `json:"ideas"`
		HowDidYouHear string `json:"howDidYouHear"`
	}{
		Name:          req.Values.FullName,
		Email:         req.Values.Email,
		Website:       req.Values.Website,
		Ideas:         req.Values.Ideas,
		HowDidYouHear: req.Values.HeardFrom,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, "", err
	}
	return bytes.NewReader(raw), "application/json", nil
}

// FormEncoder renders the form-encoded field set a forms-as-a-service
// provider accepts, including its control fields: the subject line, an empty
// honeypot to trap bots, and a flag disabling the provider's captcha page.
type FormEncoder struct{}

// Encode implements Encoder.
func (FormEncoder) Encode(req types.DeliveryRequest) (io.Reader, string, error) {
	vals := url.Values{}
	vals.Set("name", req.Values.FullName)
	vals.Set("email", req.Values.Email)
	vals.Set("website", orNotProvided(req.Values.Website))
	vals.Set("message", orNotProvided(req.Values.Ideas))
	vals.Set("howDidYouHear", orNotProvided(req.Values.HeardFrom))
	vals.Set("_subject", req.Subject)
	vals.Set("_honey", "")
	vals.Set("_captcha", "false")

	return strings.NewReader(vals.Encode()), "application/x-www-form-urlencoded", nil
}

func orNotProvided(s string) string {
	if strings.TrimSpace(s) == "" {
		return notProvided
	}
	return s
}
