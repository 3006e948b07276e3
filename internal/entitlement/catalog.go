package entitlement

// Catalog maps the fixed access group roster to the numeric group IDs
// defined in the OpenPath organization. The IDs are configuration, not
// derived data; the defaults match the production org.
type Catalog struct {
	Leadership24x7 GroupID
	Shop           GroupID
	Stewards       GroupID
	Instructors    GroupID
	CoWorking      GroupID
	ShaperOrigin   GroupID
	Domino         GroupID
}

func DefaultCatalog() Catalog {
	return Catalog{
		Leadership24x7: 23174,
		Shop:           23172,
		Stewards:       27683,
		Instructors:    96676,
		CoWorking:      23175,
		ShaperOrigin:   37059,
		Domino:         96643,
	}
}

// Name returns the symbolic name for a group ID, for logging.
func (c Catalog) Name(id GroupID) string {
	switch id {
	case c.Leadership24x7:
		return "Leadership-24x7"
	case c.Shop:
		return "Shop"
	case c.Stewards:
		return "Stewards"
	case c.Instructors:
		return "Instructors"
	case c.CoWorking:
		return "CoWorking"
	case c.ShaperOrigin:
		return "ShaperOrigin"
	case c.Domino:
		return "Domino"
	default:
		return "unknown"
	}
}
