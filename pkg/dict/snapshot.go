package dict

import (
	"sort"
	"unicode/utf8"
)

// Drug is a canonical registry entry. ID is the only stable identity.
type Drug struct {
	ID      string   `json:"db_id"`
	Name    string   `json:"name"`
	Targets []string `json:"targets,omitempty"`
}

// Synonym maps an alternative name to a registry drug.
type Synonym struct {
	DrugID  string `json:"db_id"`
	Name    string `json:"name"`
	Synonym string `json:"synonym"`
}

// Product maps a commercial product name to a drug. A product name may
// appear on several rows (combination products).
type Product struct {
	DrugID      string `json:"db_id"`
	Name        string `json:"name"`
	ProductName string `json:"product_name"`
}

// Identifier maps an external resource alias to a drug.
type Identifier struct {
	DrugID         string `json:"db_id"`
	Name           string `json:"name"`
	IdentifierName string `json:"identifier_name"`
	Resource       string `json:"resource"`
}

// DrugRow is one raw line of the drug table (one per drug/target pair).
type DrugRow struct {
	ID       string
	Name     string
	Target   string
	Organism string
}

// Tables holds raw reference rows before filtering and indexing.
type Tables struct {
	Drugs       []DrugRow
	Synonyms    []Synonym
	Products    []Product
	Identifiers []Identifier
}

// LoadStats counts rows dropped while building a snapshot.
type LoadStats struct {
	FilteredOrganism   int `json:"filtered_organism"`
	EmptyRows          int `json:"empty_rows"`
	ShortSynonyms      int `json:"short_synonyms"`
	OrphanSynonyms     int `json:"orphan_synonyms"`
	FilteredIdentifier int `json:"filtered_identifiers"`
	Duplicates         int `json:"duplicates"`
}

// Snapshot is an immutable, indexed view of a reference bundle.
// It is safe for concurrent readers.
type Snapshot struct {
	Manifest    *Manifest
	Drugs       []Drug
	Synonyms    []Synonym
	Products    []Product
	Identifiers []Identifier
	Stats       LoadStats

	names    []string
	nameToID map[string]string
	byID     map[string]int
}

// Build filters, normalizes and indexes raw tables according to m.
func Build(m *Manifest, t Tables) *Snapshot {
	if m == nil {
		m = &Manifest{ID: "inline"}
	}
	m.applyDefaults()
	normalize := GetNormalizer(m.Format.Normalize)
	s := &Snapshot{Manifest: m}

	// Drugs: one Drug per ID, targets accumulated.
	drugs := make(map[string]*Drug)
	for _, r := range t.Drugs {
		if m.Filters.Organism != "" && r.Organism != m.Filters.Organism {
			s.Stats.FilteredOrganism++
			continue
		}
		name := normalize(r.Name)
		if r.ID == "" || name == "" {
			s.Stats.EmptyRows++
			continue
		}
		d, ok := drugs[r.ID]
		if !ok {
			d = &Drug{ID: r.ID, Name: name}
			drugs[r.ID] = d
		}
		if r.Target != "" && !containsString(d.Targets, r.Target) {
			d.Targets = append(d.Targets, r.Target)
		}
	}
	s.Drugs = make([]Drug, 0, len(drugs))
	for _, d := range drugs {
		sort.Strings(d.Targets)
		s.Drugs = append(s.Drugs, *d)
	}
	sort.Slice(s.Drugs, func(i, j int) bool { return s.Drugs[i].ID < s.Drugs[j].ID })

	s.index()

	// Synonyms are joined to the registry; orphans and short strings are dropped.
	seenSyn := make(map[Synonym]bool)
	for _, r := range t.Synonyms {
		syn := normalize(r.Synonym)
		if syn == "" {
			s.Stats.EmptyRows++
			continue
		}
		idx, ok := s.byID[r.DrugID]
		if !ok {
			s.Stats.OrphanSynonyms++
			continue
		}
		if utf8.RuneCountInString(syn) < m.Filters.MinSynonymLength {
			s.Stats.ShortSynonyms++
			continue
		}
		e := Synonym{DrugID: r.DrugID, Name: s.Drugs[idx].Name, Synonym: syn}
		if seenSyn[e] {
			s.Stats.Duplicates++
			continue
		}
		seenSyn[e] = true
		s.Synonyms = append(s.Synonyms, e)
	}
	sort.Slice(s.Synonyms, func(i, j int) bool {
		a, b := s.Synonyms[i], s.Synonyms[j]
		if a.Synonym != b.Synonym {
			return a.Synonym < b.Synonym
		}
		return a.DrugID < b.DrugID
	})

	seenProd := make(map[Product]bool)
	for _, r := range t.Products {
		e := Product{DrugID: r.DrugID, Name: normalize(r.Name), ProductName: normalize(r.ProductName)}
		if e.Name == "" {
			if idx, ok := s.byID[r.DrugID]; ok {
				e.Name = s.Drugs[idx].Name
			}
		}
		if e.ProductName == "" || e.Name == "" {
			s.Stats.EmptyRows++
			continue
		}
		if seenProd[e] {
			s.Stats.Duplicates++
			continue
		}
		seenProd[e] = true
		s.Products = append(s.Products, e)
	}
	sort.Slice(s.Products, func(i, j int) bool {
		a, b := s.Products[i], s.Products[j]
		if a.ProductName != b.ProductName {
			return a.ProductName < b.ProductName
		}
		return a.Name < b.Name
	})

	seenIdent := make(map[Identifier]bool)
	for _, r := range t.Identifiers {
		if r.Resource != m.Filters.IdentifierResource {
			s.Stats.FilteredIdentifier++
			continue
		}
		e := Identifier{DrugID: r.DrugID, Name: normalize(r.Name), IdentifierName: normalize(r.IdentifierName), Resource: r.Resource}
		if e.Name == "" {
			if idx, ok := s.byID[r.DrugID]; ok {
				e.Name = s.Drugs[idx].Name
			}
		}
		if e.IdentifierName == "" || e.Name == "" {
			s.Stats.EmptyRows++
			continue
		}
		if seenIdent[e] {
			s.Stats.Duplicates++
			continue
		}
		seenIdent[e] = true
		s.Identifiers = append(s.Identifiers, e)
	}
	sort.Slice(s.Identifiers, func(i, j int) bool {
		a, b := s.Identifiers[i], s.Identifiers[j]
		if a.IdentifierName != b.IdentifierName {
			return a.IdentifierName < b.IdentifierName
		}
		return a.DrugID < b.DrugID
	})

	return s
}

// index rebuilds the unexported lookup structures from s.Drugs.
// Drugs must already be sorted by ID.
func (s *Snapshot) index() {
	s.byID = make(map[string]int, len(s.Drugs))
	s.nameToID = make(map[string]string, len(s.Drugs))
	for i, d := range s.Drugs {
		s.byID[d.ID] = i
		// Smallest ID wins when names collide.
		if _, ok := s.nameToID[d.Name]; !ok {
			s.nameToID[d.Name] = d.ID
		}
	}
	s.names = make([]string, 0, len(s.nameToID))
	for name := range s.nameToID {
		s.names = append(s.names, name)
	}
	sort.Strings(s.names)
}

// Names returns the sorted set of canonical names. Callers must not modify it.
func (s *Snapshot) Names() []string {
	return s.names
}

// DrugID returns the registry ID matching a canonical name.
func (s *Snapshot) DrugID(name string) (string, bool) {
	id, ok := s.nameToID[name]
	return id, ok
}

// Drug returns the registry entry for id.
func (s *Snapshot) Drug(id string) (Drug, bool) {
	idx, ok := s.byID[id]
	if !ok {
		return Drug{}, false
	}
	return s.Drugs[idx], true
}

// DrugInfo is the result of a registry lookup.
type DrugInfo struct {
	Drug     Drug     `json:"drug"`
	Via      string   `json:"via"`
	Synonyms []string `json:"synonyms,omitempty"`
	Products []string `json:"products,omitempty"`
}

// Lookup resolves a term by exact canonical name, then synonym, then product name.
func (s *Snapshot) Lookup(term string) (*DrugInfo, bool) {
	key := GetNormalizer(s.Manifest.Format.Normalize)(term)
	if key == "" {
		return nil, false
	}

	var id, via string
	if v, ok := s.nameToID[key]; ok {
		id, via = v, "name"
	}
	if id == "" {
		for _, syn := range s.Synonyms {
			if syn.Synonym == key {
				id, via = syn.DrugID, "synonym"
				break
			}
		}
	}
	if id == "" {
		for _, p := range s.Products {
			if p.ProductName == key {
				if v, ok := s.nameToID[p.Name]; ok {
					id, via = v, "product"
					break
				}
			}
		}
	}
	d, ok := s.Drug(id)
	if !ok {
		return nil, false
	}

	info := &DrugInfo{Drug: d, Via: via}
	for _, syn := range s.Synonyms {
		if syn.DrugID == d.ID {
			info.Synonyms = append(info.Synonyms, syn.Synonym)
		}
	}
	for _, p := range s.Products {
		if p.Name == d.Name && !containsString(info.Products, p.ProductName) {
			info.Products = append(info.Products, p.ProductName)
		}
	}
	return info, true
}

func containsString(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}
