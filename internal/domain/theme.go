package domain

type Theme struct {
	Name            string `json:"name"`
	Category        string `json:"category"`
	PrimaryColor    string `json:"primaryColor"`
	BackgroundColor string `json:"backgroundColor"`
	TextColor       string `json:"textColor"`
	TitleFont       string `json:"titleFont"`
	BodyFont        string `json:"bodyFont"`
	LogoURL         string `json:"logoUrl,omitempty"`
}

// ThemePresets is the small built-in set used when a request names no theme.
var ThemePresets = []Theme{
	{
		Name:            "Cybernetic Blue",
		Category:        "Tech",
		PrimaryColor:    "#00FFFF",
		BackgroundColor: "#001F3F",
		TextColor:       "#EAEAEA",
		TitleFont:       "Montserrat",
		BodyFont:        "Inter",
	},
	{
		Name:            "Minimalist Light",
		Category:        "Minimal",
		PrimaryColor:    "#1f2937",
		BackgroundColor: "#f9fafb",
		TextColor:       "#374151",
		TitleFont:       "Inter",
		BodyFont:        "Inter",
	},
	{
		Name:            "Executive Blue",
		Category:        "Corporate",
		PrimaryColor:    "#2563eb",
		BackgroundColor: "#ffffff",
		TextColor:       "#1f2937",
		TitleFont:       "Poppins",
		BodyFont:        "Inter",
	},
}

// ThemeByName returns the preset with the given name, or the first preset.
func ThemeByName(name string) Theme {
	for _, t := range ThemePresets {
		if t.Name == name {
			return t
		}
	}
	return ThemePresets[0]
}
