package models

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	id "idregistry/pkg/domain"
	dErrors "idregistry/pkg/domain-errors"
)

// Modality is the kind of biometric sample captured.
type Modality string

const (
	ModalityFace        Modality = "face"
	ModalitySignature   Modality = "signature"
	ModalityFingerprint Modality = "fingerprint"
)

// FingerPosition names one of the ten canonical finger positions.
type FingerPosition string

const (
	LeftThumb   FingerPosition = "left_thumb"
	LeftIndex   FingerPosition = "left_index"
	LeftMiddle  FingerPosition = "left_middle"
	LeftRing    FingerPosition = "left_ring"
	LeftLittle  FingerPosition = "left_little"
	RightThumb  FingerPosition = "right_thumb"
	RightIndex  FingerPosition = "right_index"
	RightMiddle FingerPosition = "right_middle"
	RightRing   FingerPosition = "right_ring"
	RightLittle FingerPosition = "right_little"
)

// CanonicalFingerPositions is the required finger set for a complete capture.
var CanonicalFingerPositions = []FingerPosition{
	LeftThumb, LeftIndex, LeftMiddle, LeftRing, LeftLittle,
	RightThumb, RightIndex, RightMiddle, RightRing, RightLittle,
}

// Sample is one captured biometric template, submitted per capture attempt.
// TemplateData is opaque to this core; only its hash is ever persisted.
type Sample struct {
	Modality     Modality       `json:"modality"`
	Position     FingerPosition `json:"position,omitempty"`
	TemplateData []byte         `json:"template_data"`
}

// TemplateHash returns the hex SHA-256 of the opaque template bytes.
func (s Sample) TemplateHash() string {
	sum := sha256.Sum256(s.TemplateData)
	return hex.EncodeToString(sum[:])
}

// SampleSet is the ordered set of samples in one capture attempt.
type SampleSet []Sample

// Validate checks structural soundness: at least one sample, known
// modalities, fingerprints carry a canonical position, no duplicates.
func (set SampleSet) Validate() error {
	if len(set) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "sample set cannot be empty")
	}
	seen := make(map[string]struct{}, len(set))
	for _, s := range set {
		switch s.Modality {
		case ModalityFace, ModalitySignature:
			if s.Position != "" {
				return dErrors.Newf(dErrors.CodeBadRequest, "%s samples must not carry a finger position", s.Modality)
			}
		case ModalityFingerprint:
			if !isCanonicalPosition(s.Position) {
				return dErrors.Newf(dErrors.CodeBadRequest, "unknown finger position %q", s.Position)
			}
		default:
			return dErrors.Newf(dErrors.CodeBadRequest, "unknown modality %q", s.Modality)
		}
		if len(s.TemplateData) == 0 {
			return dErrors.New(dErrors.CodeBadRequest, "sample template data cannot be empty")
		}
		key := string(s.Modality) + "/" + string(s.Position)
		if _, dup := seen[key]; dup {
			return dErrors.Newf(dErrors.CodeBadRequest, "duplicate sample %s", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Missing reports which modalities and finger positions are absent from a
// complete set (one face, one signature, ten fingers). Empty result means
// the set is complete.
func (set SampleSet) Missing() []string {
	present := make(map[string]struct{}, len(set))
	for _, s := range set {
		present[string(s.Modality)+"/"+string(s.Position)] = struct{}{}
	}

	var missing []string
	if _, ok := present[string(ModalityFace)+"/"]; !ok {
		missing = append(missing, string(ModalityFace))
	}
	if _, ok := present[string(ModalitySignature)+"/"]; !ok {
		missing = append(missing, string(ModalitySignature))
	}
	for _, pos := range CanonicalFingerPositions {
		if _, ok := present[string(ModalityFingerprint)+"/"+string(pos)]; !ok {
			missing = append(missing, string(ModalityFingerprint)+":"+string(pos))
		}
	}
	sort.Strings(missing)
	return missing
}

// Complete reports whether the set satisfies the required-set rule.
func (set SampleSet) Complete() bool {
	return len(set.Missing()) == 0
}

func isCanonicalPosition(pos FingerPosition) bool {
	for _, p := range CanonicalFingerPositions {
		if p == pos {
			return true
		}
	}
	return false
}

// BiometricRecord is one accepted sample persisted per capture attempt.
// Records are append-only; a failed later quality check never deletes them.
type BiometricRecord struct {
	ID             id.BiometricRecordID `json:"id"`
	RegistrationID id.RegistrationID    `json:"registration_id"`
	Modality       Modality             `json:"modality"`
	Position       FingerPosition       `json:"position,omitempty"`
	QualityScore   int                  `json:"quality_score"`
	TemplateHash   string               `json:"template_hash"`
	DedupStatus    DedupStatus          `json:"dedup_status"`
	CapturedBy     string               `json:"captured_by"`
	CapturedAt     time.Time            `json:"captured_at"`
}
