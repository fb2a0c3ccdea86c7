package models

// Variant is the static catalog template an instance embodies. Variants are
// reference data owned by the catalog provider; the sync engine never
// mutates them.
type Variant struct {
	VariantKey    string `json:"pokemonKey"`
	PokemonID     int    `json:"pokemon_id"`
	Name          string `json:"name"`
	PokedexNumber int    `json:"pokedex_number"`
	Form          string `json:"form,omitempty"`
	VariantType   string `json:"variantType,omitempty"`
	Rarity        string `json:"rarity,omitempty"`
	ShinyRarity   string `json:"shiny_rarity,omitempty"`

	Attack  int `json:"attack,omitempty"`
	Defense int `json:"defense,omitempty"`
	Stamina int `json:"stamina,omitempty"`

	DateAvailable      string `json:"date_available,omitempty"`
	DateShinyAvailable string `json:"date_shiny_available,omitempty"`
	ShinyAvailable     bool   `json:"shiny_available,omitempty"`

	CurrentImage string `json:"currentImage,omitempty"`
}
