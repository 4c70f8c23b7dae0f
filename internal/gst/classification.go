// Package gst classifies supplies by place of supply and computes GST
// amounts for invoice lines and statutory summaries.
package gst

import (
	"errors"
	"fmt"
	"strings"

	"github.com/odyssey-erp/recon/internal/shared"
)

// ErrMissingTaxJurisdiction is returned when a party carries neither a state
// code nor a GSTIN to derive one from.
var ErrMissingTaxJurisdiction = errors.New("gst: missing tax jurisdiction")

// Classification tells which GST heads apply to a supply.
type Classification string

const (
	// IntraState supplies are taxed as CGST + SGST in equal halves.
	IntraState Classification = "INTRA_STATE"
	// InterState supplies are taxed as IGST at the full rate.
	InterState Classification = "INTER_STATE"
)

// IsValid reports whether c is a known classification.
func (c Classification) IsValid() bool {
	return c == IntraState || c == InterState
}

func (c Classification) String() string {
	return string(c)
}

// PartyTaxProfile carries the place-of-supply inputs for a buyer or seller.
type PartyTaxProfile struct {
	Name      string `json:"name,omitempty"`
	StateName string `json:"state_name,omitempty"`
	StateCode string `json:"state_code,omitempty"`
	GSTIN     string `json:"gstin,omitempty"`
}

var stateNames = map[string]string{
	"01": "Jammu and Kashmir",
	"02": "Himachal Pradesh",
	"03": "Punjab",
	"04": "Chandigarh",
	"05": "Uttarakhand",
	"06": "Haryana",
	"07": "Delhi",
	"08": "Rajasthan",
	"09": "Uttar Pradesh",
	"10": "Bihar",
	"11": "Sikkim",
	"12": "Arunachal Pradesh",
	"13": "Nagaland",
	"14": "Manipur",
	"15": "Mizoram",
	"16": "Tripura",
	"17": "Meghalaya",
	"18": "Assam",
	"19": "West Bengal",
	"20": "Jharkhand",
	"21": "Odisha",
	"22": "Chhattisgarh",
	"23": "Madhya Pradesh",
	"24": "Gujarat",
	"25": "Daman and Diu",
	"26": "Dadra and Nagar Haveli and Daman and Diu",
	"27": "Maharashtra",
	"28": "Andhra Pradesh (Before Division)",
	"29": "Karnataka",
	"30": "Goa",
	"31": "Lakshadweep",
	"32": "Kerala",
	"33": "Tamil Nadu",
	"34": "Puducherry",
	"35": "Andaman and Nicobar Islands",
	"36": "Telangana",
	"37": "Andhra Pradesh",
	"38": "Ladakh",
	"97": "Other Territory",
	"99": "Centre Jurisdiction",
}

// StateName returns the state registered under code, or "".
func StateName(code string) string {
	return stateNames[code]
}

// StateCodeFromGSTIN extracts the two-digit state prefix of a GSTIN.
func StateCodeFromGSTIN(gstin string) (string, error) {
	gstin = strings.TrimSpace(gstin)
	if len(gstin) < 2 {
		return "", shared.Invalid("gstin", "%q is too short to carry a state code", gstin)
	}
	return checkStateCode("gstin", gstin[:2])
}

func checkStateCode(field, code string) (string, error) {
	if len(code) != 2 || code[0] < '0' || code[0] > '9' || code[1] < '0' || code[1] > '9' {
		return "", shared.Invalid(field, "state code %q must be two digits", code)
	}
	if _, ok := stateNames[code]; !ok {
		return "", shared.Invalid(field, "unknown state code %q", code)
	}
	return code, nil
}

// ResolveStateCode returns the state code of p. An explicit code wins over the
// GSTIN prefix; when both are present they must agree.
func ResolveStateCode(p PartyTaxProfile, party string) (string, error) {
	explicit := strings.TrimSpace(p.StateCode)
	gstin := strings.TrimSpace(p.GSTIN)
	if explicit == "" && gstin == "" {
		return "", fmt.Errorf("%w: %s has no state code or GSTIN", ErrMissingTaxJurisdiction, party)
	}

	var code string
	if explicit != "" {
		c, err := checkStateCode(party+".state_code", explicit)
		if err != nil {
			return "", err
		}
		code = c
	}
	if gstin != "" {
		derived, err := StateCodeFromGSTIN(gstin)
		if err != nil {
			var ve *shared.ValidationError
			if errors.As(err, &ve) {
				ve.Field = party + ".gstin"
			}
			return "", err
		}
		if code != "" && derived != code {
			return "", shared.Invalid(party+".state_code", "state code %s disagrees with GSTIN prefix %s", code, derived)
		}
		code = derived
	}
	return code, nil
}

// ClassifyCodes compares two state codes. Empty codes are never defaulted.
func ClassifyCodes(sellerCode, buyerCode string) (Classification, error) {
	if strings.TrimSpace(buyerCode) == "" || strings.TrimSpace(sellerCode) == "" {
		return "", ErrMissingTaxJurisdiction
	}
	if sellerCode == buyerCode {
		return IntraState, nil
	}
	return InterState, nil
}

// Classify resolves both parties and decides the classification of the supply.
func Classify(seller, buyer PartyTaxProfile) (Classification, error) {
	sellerCode, err := ResolveStateCode(seller, "seller")
	if err != nil {
		return "", err
	}
	buyerCode, err := ResolveStateCode(buyer, "buyer")
	if err != nil {
		return "", err
	}
	return ClassifyCodes(sellerCode, buyerCode)
}
