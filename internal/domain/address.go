package domain

import "strings"

// DefaultCountry подставляется, если страна не указана.
const DefaultCountry = "Türkiye"

// Address — нормализованный почтовый адрес. Сравнивается структурно (==).
type Address struct {
	Street          string
	City            string
	District        string
	PostalCode      string
	Country         string
	BuildingNumber  string
	ApartmentNumber string
}

// NewAddress тримит поля и проверяет обязательные.
func NewAddress(street, city, district, postalCode, country, building, apartment string) (Address, error) {
	addr := Address{
		Street:          strings.TrimSpace(street),
		City:            strings.TrimSpace(city),
		District:        strings.TrimSpace(district),
		PostalCode:      strings.TrimSpace(postalCode),
		Country:         strings.TrimSpace(country),
		BuildingNumber:  strings.TrimSpace(building),
		ApartmentNumber: strings.TrimSpace(apartment),
	}
	if addr.Country == "" {
		addr.Country = DefaultCountry
	}

	verr := &ValidationError{}
	if addr.Street == "" {
		verr.Add("street", "is required")
	}
	if addr.City == "" {
		verr.Add("city", "is required")
	}
	if addr.District == "" {
		verr.Add("district", "is required")
	}
	if addr.PostalCode == "" {
		verr.Add("postal_code", "is required")
	}
	if err := verr.OrNil(); err != nil {
		return Address{}, err
	}
	return addr, nil
}

// Equal сравнивает адреса структурно.
func (a Address) Equal(other Address) bool {
	return a == other
}

// FullAddress собирает адрес в одну строку для документов и уведомлений.
func (a Address) FullAddress() string {
	parts := []string{a.Street}
	if a.BuildingNumber != "" {
		parts = append(parts, "No: "+a.BuildingNumber)
	}
	if a.ApartmentNumber != "" {
		parts = append(parts, "Daire: "+a.ApartmentNumber)
	}
	parts = append(parts, a.District, a.PostalCode+" "+a.City, a.Country)

	nonEmpty := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}

func (a Address) String() string {
	return a.FullAddress()
}
