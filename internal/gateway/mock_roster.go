package gateway

import (
	"github.com/google/uuid"

	"github.com/StepsArtworks/rollcall/internal/application"
)

// mockRosterNamespace seeds the deterministic ids of synthesized employees so
// repeated fallbacks for a department yield identical rosters.
var mockRosterNamespace = uuid.MustParse("8f9c2c0a-5b1e-4c63-9a78-2d4f6e0b1c35")

var mockRosterNames = map[application.Department][]string{
	application.DeptProduction: {
		"Thandi Maseko", "Pieter van der Merwe", "Lerato Dlamini", "James Okafor", "Annelie Botha",
	},
	application.DeptAnimation: {
		"Sipho Ndlovu", "Chloe Daniels", "Mandla Khumalo", "Bianca Fourie", "Tumi Mokoena", "Ruan Steyn",
	},
	application.DeptEditorial: {
		"Naledi Phiri", "Dean Jacobs", "Zanele Mthembu", "Craig Williams",
	},
	application.DeptPipeline: {
		"Kagiso Molefe", "Elna Pretorius", "Brandon Naidoo",
	},
	application.DeptAdministration: {
		"Refilwe Sithole", "Marius de Klerk", "Ayesha Patel", "Lindiwe Zulu",
	},
}

// MockRoster returns the deterministic built-in roster for a department, used
// when neither the remote workbook nor the local mirror can produce one. The
// result is never empty for a known department.
func MockRoster(dept application.Department) []application.Employee {
	names := mockRosterNames[dept]
	if len(names) == 0 {
		names = []string{"Staff Member"}
	}
	employees := make([]application.Employee, 0, len(names))
	for _, name := range names {
		id := uuid.NewSHA1(mockRosterNamespace, []byte(string(dept)+"/"+name))
		employees = append(employees, application.Employee{
			ID:         id.String(),
			Name:       name,
			Department: dept,
			Status:     application.StatusAbsent,
		})
	}
	return employees
}
