package vectorindex

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/dgryski/go-rendezvous"
)

// ivfCluster is a single inverted-file partition: a centroid plus the
// ids currently assigned to it.
type ivfCluster struct {
	centroid []float32
	members  map[string]struct{}
}

// ivfIndex is the approximate-search structure used once live
// cardinality exceeds the brute-force threshold. Cold k-means-style
// assignment: initial centroids are a random sample of the live
// vectors, followed by one assignment pass; no iterative refinement is
// required, since stability comes from rendezvous-hashing-backed
// incremental reassignment on every insert rather than repeated
// Lloyd's-algorithm passes.
type ivfIndex struct {
	clusters []*ivfCluster
	rendez   *rendezvous.Rendezvous
	nprobe   int
}

func newIVFIndex(vectors map[string][]float32, maxClusters, nprobe int) *ivfIndex {
	n := len(vectors)
	k := n / 100
	if k > maxClusters {
		k = maxClusters
	}
	if k < 1 {
		k = 1
	}

	ids := make([]string, 0, n)
	for id := range vectors {
		ids = append(ids, id)
	}
	sort.Strings(ids) // deterministic sampling order

	// Random sample of initial centroids, seeded so that the same id set
	// always yields the same sample.
	sample := append([]string(nil), ids...)
	rand.New(rand.NewSource(int64(n))).Shuffle(len(sample), func(i, j int) {
		sample[i], sample[j] = sample[j], sample[i]
	})

	clusters := make([]*ivfCluster, 0, k)
	nodeNames := make([]string, 0, k)
	for i := 0; i < k && i < len(sample); i++ {
		centroid := append([]float32(nil), vectors[sample[i]]...)
		clusters = append(clusters, &ivfCluster{
			centroid: centroid,
			members:  make(map[string]struct{}),
		})
		nodeNames = append(nodeNames, fmt.Sprintf("cluster-%d", i))
	}

	idx := &ivfIndex{
		clusters: clusters,
		rendez:   rendezvous.New(nodeNames, rendezvousHash),
		nprobe:   nprobe,
	}

	// One assignment pass: every vector goes to its nearest centroid.
	for _, id := range ids {
		idx.assign(id, vectors[id])
	}

	return idx
}

// rendezvousHash is the hash function the weighted-rendezvous node
// selection uses; it only needs to be a reasonably distributed
// 64-bit hash of the candidate key.
func rendezvousHash(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

const tieEpsilon = 1e-6

// nearestCluster returns the index of the centroid closest to v. When
// multiple centroids are within tieEpsilon of the best score, id is
// used to break the tie via rendezvous hashing so that the same vector
// always lands in the same cluster regardless of scan order — the
// source of the "stable... incremental reassign on insert" behavior
// spec §4.1 calls for in place of repeated Lloyd's-algorithm passes.
func (idx *ivfIndex) nearestCluster(id string, v []float32) int {
	best := -1
	bestScore := -2.0
	var tied []int
	for i, c := range idx.clusters {
		score := Cosine(v, c.centroid)
		if score > bestScore+tieEpsilon {
			bestScore = score
			best = i
			tied = []int{i}
		} else if score > bestScore-tieEpsilon {
			tied = append(tied, i)
		}
	}
	if len(tied) <= 1 || idx.rendez == nil {
		return best
	}

	names := make(map[string]int, len(tied))
	nodeList := make([]string, 0, len(tied))
	for _, i := range tied {
		name := clusterName(i)
		names[name] = i
		nodeList = append(nodeList, name)
	}
	picked := rendezvous.New(nodeList, rendezvousHash).Get(id)
	return names[picked]
}

func clusterName(i int) string {
	return fmt.Sprintf("cluster-%d", i)
}

// assign places id/vector into its nearest cluster.
func (idx *ivfIndex) assign(id string, v []float32) {
	if len(idx.clusters) == 0 {
		return
	}
	best := idx.nearestCluster(id, v)
	idx.clusters[best].members[id] = struct{}{}
}

// reassign moves id from its old cluster (if any) to its new nearest
// cluster, used on insert to keep the partition fresh without a full
// k-means pass.
func (idx *ivfIndex) reassign(id string, v []float32) {
	idx.remove(id)
	idx.assign(id, v)
}

func (idx *ivfIndex) remove(id string) {
	for _, c := range idx.clusters {
		delete(c.members, id)
	}
}

// probe returns the union of member ids in the top-nprobe clusters by
// centroid similarity to the query.
func (idx *ivfIndex) probe(query []float32) []string {
	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(idx.clusters))
	for i, c := range idx.clusters {
		scores[i] = scored{idx: i, score: Cosine(query, c.centroid)}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	nprobe := idx.nprobe
	if nprobe > len(scores) {
		nprobe = len(scores)
	}

	var out []string
	for i := 0; i < nprobe; i++ {
		for id := range idx.clusters[scores[i].idx].members {
			out = append(out, id)
		}
	}
	return out
}
