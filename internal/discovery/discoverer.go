package discovery

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rohmanhakim/catalog-crawler/internal/catalog"
	"github.com/rohmanhakim/catalog-crawler/internal/extractor"
	"github.com/rohmanhakim/catalog-crawler/internal/fetcher"
	"github.com/rohmanhakim/catalog-crawler/internal/frontier"
	"github.com/rohmanhakim/catalog-crawler/internal/metadata"
	"github.com/rohmanhakim/catalog-crawler/pkg/failure"
	"github.com/rohmanhakim/catalog-crawler/pkg/urlutil"
)

/*
Discoverer expands a site's category tree from its root page.

  - Expansion is iterative over an explicit stack. Children are pushed in
    reverse so nodes are expanded in document order, depth first.
  - Every node URL is claimed in a visited set keyed on the canonical URL.
    A child link that was already claimed anywhere in the expansion is not
    added again, which collapses repeated menus and self links.
  - A node whose page yields no new child links becomes a leaf, and so does
    a node at the depth cap (without being fetched).
  - A failed fetch or unreadable payload prunes that node's subtree. If that
    leaves the parent without children the parent becomes a leaf.
  - A failure on the root aborts the expansion.
*/
type Discoverer struct {
	fetcher      fetcher.Fetcher
	extractor    extractor.PageExtractor
	maxDepth     int
	seedBuilder  SeedBuilder
	metadataSink metadata.MetadataSink

	visited *frontier.VisitedSet
	stats   Stats
}

type Options struct {
	// MaxDepth caps expansion; zero means unlimited. The root is depth 0.
	MaxDepth    int
	SeedBuilder SeedBuilder
	// Visited may be shared with other expansions; a fresh set is used when nil.
	Visited *frontier.VisitedSet
}

// Stats counts the work done by the last Expand call.
type Stats struct {
	NodesExpanded  int
	SubtreesPruned int
	DuplicateLinks int
	DepthCapped    int
	Leaves         int
}

func NewDiscoverer(
	f fetcher.Fetcher,
	x extractor.PageExtractor,
	opts Options,
	metadataSink metadata.MetadataSink,
) *Discoverer {
	if metadataSink == nil {
		metadataSink = &metadata.NoopSink{}
	}
	seedBuilder := opts.SeedBuilder
	if seedBuilder == nil {
		seedBuilder = PageSeed
	}
	visited := opts.Visited
	if visited == nil {
		visited = frontier.NewVisitedSet()
	}
	return &Discoverer{
		fetcher:      f,
		extractor:    x,
		maxDepth:     opts.MaxDepth,
		seedBuilder:  seedBuilder,
		metadataSink: metadataSink,
		visited:      visited,
	}
}

func (d *Discoverer) Stats() Stats {
	return d.stats
}

type frame struct {
	node   *catalog.CategoryNode
	parent *catalog.CategoryNode
}

// Expand builds the category tree rooted at seedURL.
func (d *Discoverer) Expand(ctx context.Context, seedURL url.URL) (*catalog.CategoryNode, failure.ClassifiedError) {
	d.stats = Stats{}

	if !urlutil.IsHTTP(seedURL) {
		return nil, &DiscoveryError{
			Message: fmt.Sprintf("%q is not an absolute http(s) url", seedURL.String()),
			Cause:   ErrCauseInvalidSeed,
		}
	}

	canonical := urlutil.Canonicalize(seedURL)
	root := &catalog.CategoryNode{
		ID:  canonical.String(),
		URL: canonical.String(),
	}
	d.visited.MarkIfAbsent(root.ID)

	stack := frontier.NewStack[frame]()
	stack.Push(frame{node: root})

	for {
		current, ok := stack.Pop()
		if !ok {
			break
		}
		node := current.node

		if err := ctx.Err(); err != nil {
			return nil, &DiscoveryError{Message: "expansion interrupted", Cause: ErrCauseCancelled, Err: err}
		}

		if d.maxDepth > 0 && node.Depth >= d.maxDepth {
			d.stats.DepthCapped++
			d.markLeaf(node)
			continue
		}

		links, err := d.expandNode(ctx, node)
		if err != nil {
			if current.parent == nil || fetcher.IsCancelled(err) {
				return nil, d.rootError(node, err)
			}
			d.prune(current.parent, node, err)
			continue
		}
		d.stats.NodesExpanded++

		node.Children = d.admitChildren(node, links)
		if len(node.Children) == 0 {
			d.markLeaf(node)
			continue
		}
		for i := len(node.Children) - 1; i >= 0; i-- {
			stack.Push(frame{node: node.Children[i], parent: node})
		}
	}

	d.stats.Leaves = len(root.Leaves())
	return root, nil
}

func (d *Discoverer) expandNode(ctx context.Context, node *catalog.CategoryNode) ([]catalog.LinkRef, failure.ClassifiedError) {
	nodeURL, err := url.Parse(node.URL)
	if err != nil {
		return nil, &DiscoveryError{Message: err.Error(), Cause: ErrCauseInvalidSeed}
	}

	resp, fetchErr := d.fetcher.Fetch(ctx, fetcher.NewGetRequest(*nodeURL))
	if fetchErr != nil {
		return nil, fetchErr
	}

	base := resp.URL()
	if base.Host == "" {
		base = *nodeURL
	}
	return d.extractor.ExtractChildren(resp.Body(), base)
}

// admitChildren keeps the links not yet claimed by any other node.
func (d *Discoverer) admitChildren(node *catalog.CategoryNode, links []catalog.LinkRef) []*catalog.CategoryNode {
	var children []*catalog.CategoryNode
	for _, link := range links {
		parsed, err := url.Parse(link.URL)
		if err != nil || !urlutil.IsHTTP(*parsed) {
			continue
		}
		canonical := urlutil.Canonicalize(*parsed)
		key := canonical.String()
		if !d.visited.MarkIfAbsent(key) {
			d.stats.DuplicateLinks++
			continue
		}
		children = append(children, &catalog.CategoryNode{
			ID:       key,
			Name:     link.Name,
			URL:      key,
			ParentID: node.ID,
			Depth:    node.Depth + 1,
		})
	}
	return children
}

func (d *Discoverer) markLeaf(node *catalog.CategoryNode) {
	node.Children = nil
	node.IsLeaf = true
	node.ListingSeed = d.seedBuilder(*node)
}

func (d *Discoverer) prune(parent, node *catalog.CategoryNode, err failure.ClassifiedError) {
	d.stats.SubtreesPruned++

	kept := parent.Children[:0]
	for _, child := range parent.Children {
		if child != node {
			kept = append(kept, child)
		}
	}
	parent.Children = kept
	if len(parent.Children) == 0 {
		d.markLeaf(parent)
	}

	d.metadataSink.RecordError(
		time.Now(),
		"discovery",
		"Discoverer.Expand",
		causeOf(err),
		fmt.Sprintf("subtree pruned: %v", err),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, node.URL),
			metadata.NewAttr(metadata.AttrDepth, strconv.Itoa(node.Depth)),
		},
	)
}

func (d *Discoverer) rootError(node *catalog.CategoryNode, err failure.ClassifiedError) *DiscoveryError {
	discoveryErr := &DiscoveryError{Message: node.URL, Cause: ErrCauseRootUnavailable, Err: err}
	switch {
	case fetcher.IsCancelled(err):
		discoveryErr.Cause = ErrCauseCancelled
	case isExtractionError(err):
		discoveryErr.Cause = ErrCauseRootUnreadable
	}

	if discoveryErr.Cause != ErrCauseCancelled {
		d.metadataSink.RecordError(
			time.Now(),
			"discovery",
			"Discoverer.Expand",
			causeOf(err),
			discoveryErr.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, node.URL),
			},
		)
	}
	return discoveryErr
}
