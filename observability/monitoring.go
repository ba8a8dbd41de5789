package observability

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"tox-lab/domain"

	"github.com/shirou/gopsutil/process"
)

// recentVerdictCap borne la liste des verdicts affichés par l'inspecteur.
const recentVerdictCap = 20

// RecentVerdict représente un verdict récent, sans le texte d'origine.
type RecentVerdict struct {
	Variant   string `json:"variant"`
	Toxic     bool   `json:"toxic"`
	TopLabel  string `json:"top_label"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Timestamp string `json:"timestamp"`
}

// PipelineStats agrège toutes les métriques pour l'UI
type PipelineStats struct {
	// --- CLASSIFICATION METRICS ---
	Throughput float64 `json:"throughput"` // textes/s (dernière fenêtre)
	Classified uint64  `json:"classified"`
	Toxic      uint64  `json:"toxic"`
	Degraded   uint64  `json:"degraded"`
	Failed     uint64  `json:"failed"`

	// --- CATEGORY METRICS ---
	CategoryFlags map[string]uint64 `json:"category_flags"`

	// --- BATCHER METRICS ---
	PendingTexts  int    `json:"pending_texts"`
	BatchCapacity uint32 `json:"batch_capacity"`

	// --- SYSTEM METRICS ---
	AllocMemMb     uint64          `json:"alloc_mem_mb"`
	NumGC          uint32          `json:"num_gc"`
	ProcessRssMb   uint64          `json:"process_rss_mb"`
	ProcessCPUPct  float64         `json:"process_cpu_pct"`
	RecentVerdicts []RecentVerdict `json:"recent_verdicts"`
}

// categorySlot fige la position de chaque catégorie dans les compteurs atomiques.
var categorySlot = func() map[domain.Category]int {
	slots := make(map[domain.Category]int, domain.CategoryCount)
	for i, c := range domain.Categories() {
		slots[c] = i
	}
	return slots
}()

// PipelineMonitor gère la télémétrie du pipeline en temps réel
type PipelineMonitor struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats PipelineStats
	proc        *process.Process

	// Compteurs atomiques cumulés depuis le démarrage
	WindowCount   uint64
	Classified    uint64
	Toxic         uint64
	Degraded      uint64
	Failed        uint64
	categoryFlags [domain.CategoryCount]uint64
	LastCheck     time.Time
}

func NewPipelineMonitor(log *slog.Logger) *PipelineMonitor {
	pm := &PipelineMonitor{
		log:       log,
		LastCheck: time.Now(),
		latestStats: PipelineStats{
			RecentVerdicts: make([]RecentVerdict, 0),
		},
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("Process introspection unavailable", "err", err)
		return pm
	}
	pm.proc = proc
	return pm
}

// ObserveResult enregistre un verdict dans les compteurs et la liste récente.
func (pm *PipelineMonitor) ObserveResult(res domain.Result) {
	atomic.AddUint64(&pm.Classified, 1)
	atomic.AddUint64(&pm.WindowCount, 1)
	if res.IsToxic {
		atomic.AddUint64(&pm.Toxic, 1)
	}
	if res.Degraded {
		atomic.AddUint64(&pm.Degraded, 1)
	}
	for _, c := range res.Severity {
		if slot, ok := categorySlot[c]; ok {
			atomic.AddUint64(&pm.categoryFlags[slot], 1)
		}
	}
	pm.addVerdict(res)
}

// ObserveFailure compte une classification qui a échoué.
func (pm *PipelineMonitor) ObserveFailure() {
	atomic.AddUint64(&pm.Failed, 1)
}

// addVerdict ajoute un verdict récent à la liste (thread-safe)
func (pm *PipelineMonitor) addVerdict(res domain.Result) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	verdict := RecentVerdict{
		Variant:   string(res.Variant),
		Toxic:     res.IsToxic,
		ElapsedMs: res.Elapsed.Milliseconds(),
		Timestamp: time.Now().Format("15:04:05"),
	}
	if len(res.Severity) > 0 {
		verdict.TopLabel = string(res.Severity[0])
	}

	// Ajouter au début de la liste
	pm.latestStats.RecentVerdicts = append([]RecentVerdict{verdict}, pm.latestStats.RecentVerdicts...)

	// Garder seulement les 20 derniers
	if len(pm.latestStats.RecentVerdicts) > recentVerdictCap {
		pm.latestStats.RecentVerdicts = pm.latestStats.RecentVerdicts[:recentVerdictCap]
	}
}

// Listen recalcule les métriques toutes les secondes jusqu'à l'annulation du contexte.
func (pm *PipelineMonitor) Listen(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			pm.log.Info("🛑 Moniteur du pipeline arrêté")
			return

		case <-ticker.C:
			pm.updateStats()
		}
	}
}

// updateStats calcule le débit et rafraîchit les métriques système.
func (pm *PipelineMonitor) updateStats() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	now := time.Now()
	duration := now.Sub(pm.LastCheck).Seconds()

	if duration > 0 {
		// Lire et réinitialiser le compteur de la fenêtre
		n := atomic.SwapUint64(&pm.WindowCount, 0)
		pm.latestStats.Throughput = float64(n) / duration
	}
	pm.LastCheck = now

	// Charger les compteurs cumulés
	pm.latestStats.Classified = atomic.LoadUint64(&pm.Classified)
	pm.latestStats.Toxic = atomic.LoadUint64(&pm.Toxic)
	pm.latestStats.Degraded = atomic.LoadUint64(&pm.Degraded)
	pm.latestStats.Failed = atomic.LoadUint64(&pm.Failed)

	flags := make(map[string]uint64, domain.CategoryCount)
	for c, slot := range categorySlot {
		flags[string(c)] = atomic.LoadUint64(&pm.categoryFlags[slot])
	}
	pm.latestStats.CategoryFlags = flags

	// Métriques système Go
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	pm.latestStats.AllocMemMb = m.Alloc / 1024 / 1024
	pm.latestStats.NumGC = m.NumGC

	// Métriques du processus (RSS, CPU)
	if pm.proc != nil {
		if memInfo, err := pm.proc.MemoryInfo(); err == nil {
			pm.latestStats.ProcessRssMb = memInfo.RSS / 1024 / 1024
		}
		if cpu, err := pm.proc.CPUPercent(); err == nil {
			pm.latestStats.ProcessCPUPct = cpu
		}
	}

	pm.log.Debug("📊 Stats mises à jour",
		"throughput", pm.latestStats.Throughput,
		"classified", pm.latestStats.Classified,
		"toxic", pm.latestStats.Toxic,
		"degraded", pm.latestStats.Degraded,
		"mem_mb", pm.latestStats.AllocMemMb,
	)
}

// Snapshot force un recalcul immédiat puis retourne les dernières stats.
func (pm *PipelineMonitor) Snapshot() PipelineStats {
	pm.updateStats()
	return pm.GetLatest()
}

func (pm *PipelineMonitor) GetLatest() PipelineStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	return pm.latestStats
}

// UpdateQueue publie l'état de remplissage du micro-batcher.
func (pm *PipelineMonitor) UpdateQueue(pending int, capacity uint32) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.latestStats.PendingTexts = pending
	pm.latestStats.BatchCapacity = capacity
}
