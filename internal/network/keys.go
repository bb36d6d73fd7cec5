package network

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/fraudscan/internal/domain"
)

// Key identifies the network a provider belongs to.
type Key struct {
	Value    string
	Label    string
	Category domain.NetworkCategory
}

type extractor func(rec *domain.ProviderRecord, f domain.Finding) (Key, bool)

// Extractors in priority order. The first one that matches any finding wins.
var extractors = []extractor{
	controllerKey,
	hubKey,
	zipKey,
	burstKey,
}

// KeyFor returns the network key for a provider. Providers without a
// shared key form their own standalone network.
func KeyFor(rec *domain.ProviderRecord) Key {
	for _, extract := range extractors {
		for _, f := range rec.Signals {
			if k, ok := extract(rec, f); ok {
				return k
			}
		}
	}
	return Key{
		Value:    "npi:" + rec.NPI,
		Label:    fmt.Sprintf("%s (NPI %s)", rec.ProviderName, rec.NPI),
		Category: domain.NetworkStandalone,
	}
}

func controllerKey(_ *domain.ProviderRecord, f domain.Finding) (Key, bool) {
	var name string
	switch f.SignalType {
	case domain.SignalSharedOfficial, domain.SignalCoordinatedBillingRamp, domain.SignalNetworkBeneficiaryDilution:
		switch e := f.Evidence.(type) {
		case domain.SharedOfficialEvidence:
			name = e.AuthorizedOfficialName
		case *domain.GenericEvidence:
			name = e.String("authorized_official_name")
		}
	}
	name = normalize(name)
	if name == "" {
		return Key{}, false
	}
	return Key{
		Value:    "controller:" + name,
		Label:    "Authorized official " + name,
		Category: domain.NetworkSharedController,
	}, true
}

func hubKey(rec *domain.ProviderRecord, f domain.Finding) (Key, bool) {
	var hub, name string
	switch f.SignalType {
	case domain.SignalPhantomServicingHub, domain.SignalPhantomServicingSpread:
		switch e := f.Evidence.(type) {
		case domain.PhantomServicingHubEvidence:
			name = e.ServicingProviderName
		case *domain.GenericEvidence:
			hub = e.String("servicing_npi")
			name = e.String("servicing_provider_name")
		}
		// Hub findings are attributed to the servicing NPI itself.
		if hub == "" {
			hub = rec.NPI
		}
	}
	hub = strings.TrimSpace(hub)
	if hub == "" {
		return Key{}, false
	}
	label := "Servicing hub NPI " + hub
	if name = strings.TrimSpace(name); name != "" {
		label = fmt.Sprintf("Servicing hub %s (NPI %s)", name, hub)
	}
	return Key{Value: "hub:" + hub, Label: label, Category: domain.NetworkServicingHub}, true
}

func zipKey(_ *domain.ProviderRecord, f domain.Finding) (Key, bool) {
	var zip string
	switch f.SignalType {
	case domain.SignalAddressClustering, domain.SignalCaregiverDensityAnomaly:
		switch e := f.Evidence.(type) {
		case domain.AddressClusteringEvidence:
			zip = e.ZipCode
		case *domain.GenericEvidence:
			zip = e.String("zip_code")
		}
	}
	zip = strings.TrimSpace(zip)
	if zip == "" {
		return Key{}, false
	}
	return Key{Value: "zip:" + zip, Label: "Zip code " + zip, Category: domain.NetworkAddressCluster}, true
}

func burstKey(_ *domain.ProviderRecord, f domain.Finding) (Key, bool) {
	if f.SignalType != domain.SignalBurstEnrollmentNetwork || f.Evidence == nil {
		return Key{}, false
	}
	loc := f.Evidence.Locale()
	tax, state := strings.TrimSpace(loc.TaxonomyCode), strings.TrimSpace(loc.State)
	if tax == "" && state == "" {
		return Key{}, false
	}
	return Key{
		Value:    "burst:" + tax + "|" + state,
		Label:    fmt.Sprintf("Burst enrollment %s in %s", tax, state),
		Category: domain.NetworkEnrollmentBurst,
	}, true
}

func normalize(name string) string {
	return strings.Join(strings.Fields(strings.ToUpper(name)), " ")
}
