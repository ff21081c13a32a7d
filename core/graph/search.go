package graph

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrIndexClosed indicates the search index has been closed.
	ErrIndexClosed = errors.New("node index closed")
)

// DefaultNodeCacheSize bounds the node lookup cache beside the index.
const DefaultNodeCacheSize = 4096

// nodeDocument is the shape indexed in bleve for each node.
type nodeDocument struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	NodeType    string `json:"node_type"`
	EntityType  string `json:"entity_type"`
}

// NodeMatch is a single search hit.
type NodeMatch struct {
	Node  *Node
	Score float64
}

// NodeIndex provides full-text lookup of nodes by name and description,
// backing the dashboard's entity search box. It keeps an LRU cache of
// recently resolved nodes so repeated searches avoid store round trips.
type NodeIndex struct {
	index bleve.Index
	nodes *NodeStore
	cache *lru.Cache[string, *Node]

	mu     sync.RWMutex
	closed bool

	hits   atomic.Int64
	misses atomic.Int64
}

// OpenNodeIndex opens (or creates) a bleve index at path, resolving
// hits through the given NodeStore. cacheSize <= 0 uses the default.
func OpenNodeIndex(path string, nodes *NodeStore, cacheSize int) (*NodeIndex, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultNodeCacheSize
	}

	index, err := openBleve(path)
	if err != nil {
		return nil, err
	}

	cache, err := lru.New[string, *Node](cacheSize)
	if err != nil {
		index.Close()
		return nil, fmt.Errorf("create node cache: %w", err)
	}

	return &NodeIndex{
		index: index,
		nodes: nodes,
		cache: cache,
	}, nil
}

func openBleve(path string) (bleve.Index, error) {
	if _, err := os.Stat(path); err == nil {
		index, err := bleve.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open node index at %s: %w", path, err)
		}
		return index, nil
	}

	mapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("name", bleve.NewTextFieldMapping())
	docMapping.AddFieldMappingsAt("description", bleve.NewTextFieldMapping())
	docMapping.AddFieldMappingsAt("node_type", bleve.NewKeywordFieldMapping())
	docMapping.AddFieldMappingsAt("entity_type", bleve.NewKeywordFieldMapping())
	mapping.DefaultMapping = docMapping

	index, err := bleve.New(path, mapping)
	if err != nil {
		return nil, fmt.Errorf("create node index at %s: %w", path, err)
	}
	return index, nil
}

// IndexNode adds or updates a node in the search index.
func (ni *NodeIndex) IndexNode(node *Node) error {
	ni.mu.RLock()
	defer ni.mu.RUnlock()
	if ni.closed {
		return ErrIndexClosed
	}

	doc := nodeDocument{
		Name:        node.Metadata.Name,
		Description: node.Metadata.Description,
		NodeType:    node.NodeType.String(),
		EntityType:  node.Entity.Type,
	}
	if err := ni.index.Index(node.ID, doc); err != nil {
		return fmt.Errorf("index node %s: %w", node.ID, err)
	}

	ni.cache.Add(node.ID, node)
	return nil
}

// RemoveNode deletes a node from the index and cache.
func (ni *NodeIndex) RemoveNode(id string) error {
	ni.mu.RLock()
	defer ni.mu.RUnlock()
	if ni.closed {
		return ErrIndexClosed
	}

	if err := ni.index.Delete(id); err != nil {
		return fmt.Errorf("remove node %s from index: %w", id, err)
	}
	ni.cache.Remove(id)
	return nil
}

// Search finds nodes whose name or description match the query,
// optionally restricted to one node type. Hits are resolved to full
// nodes through the cache, falling back to the store.
func (ni *NodeIndex) Search(queryStr string, nodeType NodeType, limit int) ([]*NodeMatch, error) {
	ni.mu.RLock()
	defer ni.mu.RUnlock()
	if ni.closed {
		return nil, ErrIndexClosed
	}
	if limit <= 0 {
		limit = 20
	}

	nameQuery := bleve.NewMatchQuery(queryStr)
	nameQuery.SetField("name")
	nameQuery.SetBoost(2.0)

	descQuery := bleve.NewMatchQuery(queryStr)
	descQuery.SetField("description")

	combined := bleve.NewDisjunctionQuery(nameQuery, descQuery)

	var req *bleve.SearchRequest
	if nodeType != "" {
		typeQuery := bleve.NewTermQuery(nodeType.String())
		typeQuery.SetField("node_type")
		req = bleve.NewSearchRequest(bleve.NewConjunctionQuery(combined, typeQuery))
	} else {
		req = bleve.NewSearchRequest(combined)
	}
	req.Size = limit

	result, err := ni.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search node index: %w", err)
	}

	matches := make([]*NodeMatch, 0, len(result.Hits))
	for _, hit := range result.Hits {
		node, err := ni.resolve(hit.ID)
		if err != nil {
			// Stale index entry; drop the hit.
			continue
		}
		matches = append(matches, &NodeMatch{Node: node, Score: hit.Score})
	}
	return matches, nil
}

func (ni *NodeIndex) resolve(id string) (*Node, error) {
	if node, ok := ni.cache.Get(id); ok {
		ni.hits.Add(1)
		return node, nil
	}
	ni.misses.Add(1)

	node, err := ni.nodes.GetNodeByID(id)
	if err != nil {
		return nil, err
	}
	ni.cache.Add(id, node)
	return node, nil
}

// CacheStats reports cache hit/miss counts for observability.
func (ni *NodeIndex) CacheStats() (hits, misses int64) {
	return ni.hits.Load(), ni.misses.Load()
}

// Close closes the underlying index. Further calls return ErrIndexClosed.
func (ni *NodeIndex) Close() error {
	ni.mu.Lock()
	defer ni.mu.Unlock()
	if ni.closed {
		return nil
	}
	ni.closed = true
	ni.cache.Purge()
	return ni.index.Close()
}
