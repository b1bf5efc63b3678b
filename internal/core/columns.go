package core

import "strings"

// FieldType represents how a registry column is cleaned and stored.
type FieldType int

const (
	FieldText FieldType = iota
	FieldDate
	FieldNumeric
	FieldBool
)

func (t FieldType) String() string {
	switch t {
	case FieldDate:
		return "date"
	case FieldNumeric:
		return "numeric"
	case FieldBool:
		return "bool"
	}
	return "text"
}

// ColumnSpec binds one source header to one canonical registry column.
type ColumnSpec struct {
	Source string    // Header name in the registry extract
	Name   string    // Canonical column name in the store
	Type   FieldType // Cleaning rule
}

// Canonical names the pipeline reads directly.
const (
	ColSIRET      = "siret"
	ColSIREN      = "siren"
	ColPostalCode = "code_postal"
	ColState      = "etat_administratif"
	ColHeadOffice = "etablissement_siege"
)

// RegistryColumns is the static column mapping of the establishment extract.
// Order is the column order of RegistryRecord values and of store writes.
var RegistryColumns = []ColumnSpec{
	{"siren", ColSIREN, FieldText},
	{"nic", "nic", FieldText},
	{"siret", ColSIRET, FieldText},
	{"statutDiffusionEtablissement", "statut_diffusion", FieldText},
	{"dateCreationEtablissement", "date_creation", FieldDate},
	{"trancheEffectifsEtablissement", "tranche_effectifs", FieldText},
	{"anneeEffectifsEtablissement", "annee_effectifs", FieldNumeric},
	{"activitePrincipaleRegistreMetiersEtablissement", "activite_principale_registre_metiers", FieldText},
	{"dateDernierTraitementEtablissement", "date_dernier_traitement", FieldDate},
	{"etablissementSiege", ColHeadOffice, FieldBool},
	{"nombrePeriodesEtablissement", "nombre_periodes", FieldNumeric},
	{"complementAdresseEtablissement", "complement_adresse", FieldText},
	{"numeroVoieEtablissement", "numero_voie", FieldText},
	{"indiceRepetitionEtablissement", "indice_repetition", FieldText},
	{"dernierNumeroVoieEtablissement", "dernier_numero_voie", FieldText},
	{"indiceRepetitionDernierNumeroVoieEtablissement", "indice_repetition_dernier", FieldText},
	{"typeVoieEtablissement", "type_voie", FieldText},
	{"libelleVoieEtablissement", "libelle_voie", FieldText},
	{"codePostalEtablissement", ColPostalCode, FieldText},
	{"libelleCommuneEtablissement", "libelle_commune", FieldText},
	{"libelleCommuneEtrangerEtablissement", "libelle_commune_etranger", FieldText},
	{"distributionSpecialeEtablissement", "distribution_speciale", FieldText},
	{"codeCommuneEtablissement", "code_commune", FieldText},
	{"codeCedexEtablissement", "code_cedex", FieldText},
	{"libelleCedexEtablissement", "libelle_cedex", FieldText},
	{"codePaysEtrangerEtablissement", "code_pays_etranger", FieldText},
	{"libellePaysEtrangerEtablissement", "libelle_pays_etranger", FieldText},
	{"identifiantAdresseEtablissement", "identifiant_adresse", FieldText},
	{"coordonneeLambertAbscisseEtablissement", "coordonnee_lambert_x", FieldNumeric},
	{"coordonneeLambertOrdonneeEtablissement", "coordonnee_lambert_y", FieldNumeric},
	{"complementAdresse2Etablissement", "complement_adresse_2", FieldText},
	{"numeroVoie2Etablissement", "numero_voie_2", FieldText},
	{"indiceRepetition2Etablissement", "indice_repetition_2", FieldText},
	{"typeVoie2Etablissement", "type_voie_2", FieldText},
	{"libelleVoie2Etablissement", "libelle_voie_2", FieldText},
	{"codePostal2Etablissement", "code_postal_2", FieldText},
	{"libelleCommune2Etablissement", "libelle_commune_2", FieldText},
	{"libelleCommuneEtranger2Etablissement", "libelle_commune_etranger_2", FieldText},
	{"distributionSpeciale2Etablissement", "distribution_speciale_2", FieldText},
	{"codeCommune2Etablissement", "code_commune_2", FieldText},
	{"codeCedex2Etablissement", "code_cedex_2", FieldText},
	{"libelleCedex2Etablissement", "libelle_cedex_2", FieldText},
	{"codePaysEtranger2Etablissement", "code_pays_etranger_2", FieldText},
	{"libellePaysEtranger2Etablissement", "libelle_pays_etranger_2", FieldText},
	{"dateDebut", "date_debut", FieldDate},
	{"etatAdministratifEtablissement", ColState, FieldText},
	{"enseigne1Etablissement", "enseigne_1", FieldText},
	{"enseigne2Etablissement", "enseigne_2", FieldText},
	{"enseigne3Etablissement", "enseigne_3", FieldText},
	{"denominationUsuelleEtablissement", "denomination_usuelle", FieldText},
	{"activitePrincipaleEtablissement", "activite_principale", FieldText},
	{"nomenclatureActivitePrincipaleEtablissement", "nomenclature_activite", FieldText},
	{"caractereEmployeurEtablissement", "caractere_employeur", FieldText},
}

var (
	// sourceIndex maps lowercased header names to RegistryColumns positions.
	sourceIndex = make(map[string]int, len(RegistryColumns))
	// nameIndex maps canonical names to RegistryColumns positions.
	nameIndex = make(map[string]int, len(RegistryColumns))
)

func init() {
	for i, col := range RegistryColumns {
		sourceIndex[strings.ToLower(col.Source)] = i
		nameIndex[col.Name] = i
	}
}

// ColumnNames returns the canonical column names in RegistryColumns order.
func ColumnNames() []string {
	names := make([]string, len(RegistryColumns))
	for i, col := range RegistryColumns {
		names[i] = col.Name
	}
	return names
}

// ColumnIndex returns the position of a canonical column, or -1.
func ColumnIndex(name string) int {
	if i, ok := nameIndex[name]; ok {
		return i
	}
	return -1
}

// LookupSource returns the column bound to a source header name.
// Matching ignores surrounding quotes, whitespace and case.
func LookupSource(header string) (ColumnSpec, int, bool) {
	i, ok := sourceIndex[strings.ToLower(cleanHeader(header))]
	if !ok {
		return ColumnSpec{}, -1, false
	}
	return RegistryColumns[i], i, true
}

func cleanHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.TrimSpace(strings.ReplaceAll(h, `"`, ""))
}
