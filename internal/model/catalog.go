package model

// Subject names
const (
	SubjectMath    = "Math"
	SubjectScience = "Science"
)

// Catalog lists the choices offered by the wizard. Free-text topics are
// accepted through the "other" branch, so topics here are suggestions.
type Catalog struct {
	Subjects []string            `json:"subjects"`
	Topics   map[string][]string `json:"topics"`
	Genres   []string            `json:"genres"`
}

// DefaultCatalog returns the built-in subject, topic and genre lists
func DefaultCatalog() Catalog {
	return Catalog{
		Subjects: []string{SubjectMath, SubjectScience},
		Topics: map[string][]string{
			SubjectMath: {
				"Whole Numbers",
				"Integers",
				"Exponents",
				"Numeric and Geometric Patterns",
				"Functions and Relationships",
				"Algebraic Expressions",
				"Algebraic Equations",
				"Constructions of Geometric Figures",
			},
			SubjectScience: {
				"Matter & classification",
				"Kinetic theory",
				"Atoms",
				"Chemical bonding",
				"Particles substances are made of",
				"Waves: Basics",
				"Electromagnetic radiation",
				"Physical and chemical change",
			},
		},
		Genres: []string{"Pop", "Hip hop", "Rock", "Soul"},
	}
}
